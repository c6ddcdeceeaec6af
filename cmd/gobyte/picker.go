package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/toolza/gobyte/discovery"
)

// pickPaths offers every entry directly under dir as a multi-select,
// generalizing the teacher's FileSelector from single-toggle navigation to
// huh's native multi-select — used only when the operator ran `send`
// without positional file arguments.
func pickPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var options []huh.Option[string]
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		label := e.Name()
		if e.IsDir() {
			label += "/"
		}
		options = append(options, huh.NewOption(label, full))
	}

	var selected []string
	form := huh.NewMultiSelect[string]().
		Title(fmt.Sprintf("Choose files/folders to send from %s", dir)).
		Options(options...).
		Value(&selected).
		Height(20)

	if err := form.Run(); err != nil {
		return nil, err
	}
	return selected, nil
}

// pickTargets runs a Locator for wait, then offers every discovered peer
// as a multi-select, generalizing the teacher's PeerSelector to multiple
// simultaneous targets.
func pickTargets(wait time.Duration, listenPort uint16) ([]string, error) {
	loc := discovery.New(":9528", listenPort)

	ctx, cancel := context.WithTimeout(context.Background(), wait+time.Second)
	defer cancel()

	go loc.Start(ctx)
	time.Sleep(wait)

	peers := loc.Peers()
	if len(peers) == 0 {
		return nil, fmt.Errorf("no peers discovered on the LAN within %s", wait)
	}

	var options []huh.Option[string]
	for _, p := range peers {
		options = append(options, huh.NewOption(fmt.Sprintf("%-20s %s", p.Name, p.Addr), p.Addr))
	}

	var selected []string
	form := huh.NewMultiSelect[string]().
		Title(fmt.Sprintf("Choose targets (%d discovered):", len(peers))).
		Options(options...).
		Value(&selected)

	if err := form.Run(); err != nil {
		return nil, err
	}
	return selected, nil
}
