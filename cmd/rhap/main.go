package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/PapyKahan/rhap/audio"
	"github.com/PapyKahan/rhap/internal/config"
	"github.com/PapyKahan/rhap/player"
)

func main() {
	opts, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if *opts.Help {
		fmt.Println("rhap - exclusive-mode file player")
		return
	}

	host, err := audio.NewHost()
	if err != nil {
		log.Fatalf("rhap: opening host: %v", err)
	}

	controller := player.NewController(host)
	defer controller.Close()
	bufferLength100ns := int64(*opts.BufferMs * 10000)
	controller.SetPlaybackOptions(*opts.Exclusive, bufferLength100ns)

	if *opts.ListOnly {
		listDevices(controller)
		return
	}

	var deviceIndex *int
	if *opts.Device >= 0 {
		deviceIndex = opts.Device
	}
	if err := controller.SelectDevice(deviceIndex); err != nil {
		log.Fatalf("rhap: selecting device: %v", err)
	}

	tracks, err := collectTracks(*opts.Path)
	if err != nil {
		log.Fatalf("rhap: %v", err)
	}
	if len(tracks) == 0 {
		log.Fatalf("rhap: no playable files found at %s", *opts.Path)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	for _, path := range tracks {
		track := player.NewFileTrack(path)
		log.Printf("rhap: playing %s", path)
		if err := controller.Play(track); err != nil {
			log.Printf("rhap: %s: %v", path, err)
			continue
		}
		if !waitForTrackEnd(controller, sigCh) {
			controller.Stop()
			return
		}
	}
}

// waitForTrackEnd polls the controller's observable status until
// is_streaming drops to false, or returns false early on SIGINT.
func waitForTrackEnd(c *player.Controller, sigCh <-chan os.Signal) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	// Give the render task a moment to flip is_streaming true before
	// polling for it to go false again.
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case <-sigCh:
			return false
		case <-ticker.C:
			if !c.Status().IsStreaming() {
				return true
			}
		}
	}
}

func listDevices(c *player.Controller) {
	devices, err := c.EnumerateDevices()
	if err != nil {
		log.Fatalf("rhap: enumerating devices: %v", err)
	}
	for _, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " (default)"
		}
		fmt.Printf("%d: %s%s\n", d.Index, d.Name, marker)
	}
}

var playableExtensions = map[string]bool{
	".flac": true,
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
}

// collectTracks resolves path to a sorted list of playable files: path
// itself if it is a file, or every recognized file under it if it is a
// directory, per spec.md §6's CLI surface.
func collectTracks(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var tracks []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if playableExtensions[strings.ToLower(filepath.Ext(p))] {
			tracks = append(tracks, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}
