// Command gsym-stats summarizes a solving session: the per-testcase stats
// CSV and the accumulated coverage bitmap.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
)

const mapSize = 65536

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("gsym-stats", flag.ContinueOnError)
	statsPath := fs.String("stats", "", "path to the stats CSV")
	bitmapPath := fs.String("bitmap", "", "path to the coverage bitmap")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *statsPath == "" && *bitmapPath == "" {
		fs.Usage()
		return fmt.Errorf("at least one of -stats or -bitmap is required")
	}

	if *statsPath != "" {
		if err := printStats(*statsPath); err != nil {
			return err
		}
	}
	if *bitmapPath != "" {
		if err := printBitmap(*bitmapPath); err != nil {
			return err
		}
	}
	return nil
}

func printStats(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 7

	var (
		rows            int
		checkSeconds    float64
		syncSeconds     float64
		skipped, added  int
		symbolicVars    int
		concreteVars    int
		maxCheckSeconds float64
	)
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, rec := range records {
		rows++
		check, _ := strconv.ParseFloat(rec[1], 64)
		sync, _ := strconv.ParseFloat(rec[2], 64)
		checkSeconds += check
		syncSeconds += sync
		if check > maxCheckSeconds {
			maxCheckSeconds = check
		}
		for i, dst := range []*int{&skipped, &added, &symbolicVars, &concreteVars} {
			n, _ := strconv.Atoi(rec[3+i])
			*dst += n
		}
	}
	if rows == 0 {
		fmt.Println("no testcases generated")
		return nil
	}

	fmt.Printf("testcases:        %d\n", rows)
	fmt.Printf("solver time:      %.3fs total, %.3fs avg, %.3fs max\n",
		checkSeconds, checkSeconds/float64(rows), maxCheckSeconds)
	fmt.Printf("sync time:        %.3fs total, %.3fs avg\n",
		syncSeconds, syncSeconds/float64(rows))
	fmt.Printf("constraints:      %d added, %d skipped\n", added, skipped)
	fmt.Printf("variables:        %d symbolic, %d concrete\n", symbolicVars, concreteVars)
	return nil
}

func printBitmap(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) != mapSize {
		return fmt.Errorf("bitmap %s: unexpected size %d, want %d", path, len(data), mapSize)
	}

	hit := 0
	for _, v := range data {
		if v != 0xff {
			hit++
		}
	}
	fmt.Printf("coverage:         %d/%d buckets (%.2f%%)\n",
		hit, mapSize, float64(hit)/float64(mapSize)*100)
	return nil
}
