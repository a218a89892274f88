package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"library-members/config"
	"library-members/library"
)

// Seed file columns. Photo File is optional and resolves relative to the
// seed file's directory.
var seedColumns = []string{"Name", "Phone", "CNIC", "Address", "Fee Paid", "Photo File"}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <seed.csv>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	seedPath := os.Args[1]

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := cfg.NewLogger()

	manager, err := library.NewMemberManager(library.NewRegistryStore(cfg.DataFile, cfg.PhotoDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening registry: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(filepath.Clean(seedPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading seed file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	requests, err := readSeed(f, filepath.Dir(seedPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing seed file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Importing %d members from %s...\n", len(requests), seedPath)

	successCount := 0
	errorCount := 0
	for i, req := range requests {
		fmt.Printf("Importing: %s... ", req.Name)
		m, err := manager.Register(req)
		if err != nil {
			var verr *library.ValidationError
			if errors.As(err, &verr) {
				fmt.Printf("SKIPPED - row %d: %v\n", i+2, err)
			} else {
				fmt.Printf("ERROR - %v\n", err)
			}
			errorCount++
			continue
		}
		log.Debug("imported member", "id", m.ID, "photo", m.Photo)
		fmt.Printf("SUCCESS (ID: %s)\n", m.ID)
		successCount++
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d members\n", successCount)
	fmt.Printf("Errors: %d\n", errorCount)

	if successCount > 0 {
		members, err := manager.ListMembers()
		if err != nil {
			fmt.Printf("Error retrieving members: %v\n", err)
			return
		}
		fmt.Printf("\nRegistry now holds %d members:\n", len(members))
		fmt.Printf("%-4s %-40s %-20s %-8s\n", "#", "Name", "CNIC", "Fee Paid")
		fmt.Println(strings.Repeat("-", 75))
		for i, m := range members {
			fmt.Printf("%-4d %-40s %-20s %-8s\n", i, truncateString(m.Name, 40), truncateString(m.CNIC, 20), m.FeePaid)
		}
	}
}

// readSeed parses the seed CSV into registration requests, loading any
// referenced photo files.
func readSeed(r io.Reader, baseDir string) ([]library.RegisterRequest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range seedColumns[:3] {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("seed file missing %q column", col)
		}
	}

	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var requests []library.RegisterRequest
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		req := library.RegisterRequest{
			Name:    field(row, "Name"),
			Phone:   field(row, "Phone"),
			CNIC:    field(row, "CNIC"),
			Address: field(row, "Address"),
			FeePaid: field(row, "Fee Paid"),
		}
		if photo := strings.TrimSpace(field(row, "Photo File")); photo != "" {
			if !filepath.IsAbs(photo) {
				photo = filepath.Join(baseDir, photo)
			}
			data, err := os.ReadFile(photo)
			if err != nil {
				return nil, fmt.Errorf("photo for %s: %w", req.Name, err)
			}
			req.Photo = data
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
