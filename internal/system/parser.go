package system

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	ksmerrors "github.com/nace/ksm/internal/errors"
)

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)([KMG])(I?B)?$`)

// ParseSize converts a size string (1049kB, 120MiB, 2G) to kilobytes.
// Units are case-insensitive and always 1024-based, so 2G, 2GiB, 2GB and
// 2048M are the same size.
func ParseSize(s string) (float64, error) {
	matches := sizePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if matches == nil {
		return 0, ksmerrors.WithHint(
			ksmerrors.Validationf("invalid size format: %q", s),
			"use formats like 1048kB, 120MiB, 2G, 2GiB, 30MB, 30M")
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, ksmerrors.Validationf("invalid size value: %s", matches[1])
	}

	switch matches[2] {
	case "M":
		value *= 1024
	case "G":
		value *= 1024 * 1024
	}
	return value, nil
}

// FormatKB renders a kilobyte count as MiB with two decimals
func FormatKB(kb float64) string {
	return fmt.Sprintf("%.2f MiB", kb/1024)
}

// FormatSize converts bytes to human-readable format
func FormatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}

// FreeRegion is one "Free Space" row of a parted table, still in parted's units
type FreeRegion struct {
	Start string
	End   string
}

// ParseFreeSpace extracts the free-space rows from `parted print free` output,
// in the order parted reports them.
// Format: "        3146kB  1049MB  1046MB  Free Space"
func ParseFreeSpace(output string) []FreeRegion {
	var regions []FreeRegion
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "Free Space") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			regions = append(regions, FreeRegion{Start: fields[0], End: fields[1]})
		}
	}
	return regions
}

// ParseDmsetupTable extracts backing device from dmsetup table output
// Format: "0 sectors crypt cipher key iv_offset backing_device offset"
func ParseDmsetupTable(output string) (string, error) {
	fields := strings.Fields(output)
	if len(fields) < 7 {
		return "", fmt.Errorf("invalid dmsetup table format")
	}
	return fields[6], nil
}

// ParseDf extracts size and used bytes from `df --block-size=1` output
// Header: Filesystem     1B-blocks      Used Available Use% Mounted on
// Data:   /dev/mapper/x  1234567890  123456  ...
func ParseDf(output string) (size uint64, used uint64, err error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return 0, 0, fmt.Errorf("invalid df output")
	}

	fields := strings.Fields(lines[1])
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("invalid df output format")
	}

	if size, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid df size %q: %w", fields[1], err)
	}
	if used, err = strconv.ParseUint(fields[2], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid df used %q: %w", fields[2], err)
	}
	return size, used, nil
}

var (
	luks2SlotPattern = regexp.MustCompile(`^\s+(\d+): luks2`)
	luks1SlotPattern = regexp.MustCompile(`^Key Slot (\d+): ENABLED`)
)

// ParseKeySlots returns the active key slot numbers listed by `cryptsetup luksDump`.
// LUKS2: "Keyslots:" followed by "  0: luks2"; LUKS1: "Key Slot 0: ENABLED".
func ParseKeySlots(dump string) []int {
	var slots []int
	inKeyslots := false
	scanner := bufio.NewScanner(strings.NewReader(dump))
	for scanner.Scan() {
		line := scanner.Text()
		if m := luks1SlotPattern.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			slots = append(slots, n)
			continue
		}
		if strings.HasPrefix(line, "Keyslots:") {
			inKeyslots = true
			continue
		}
		if inKeyslots && line != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			inKeyslots = false
		}
		if inKeyslots {
			if m := luks2SlotPattern.FindStringSubmatch(line); m != nil {
				n, _ := strconv.Atoi(m[1])
				slots = append(slots, n)
			}
		}
	}
	return slots
}
