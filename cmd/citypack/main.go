// Command citypack re-encodes a city dataset, typically the raw JSON list
// into gzip compressed msgpack, which cityserve loads several times faster.
//
//	citypack -in data/cities.json -out data/cities.msgpack.gz
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bastiangx/cityserve/internal/logger"
	"github.com/bastiangx/cityserve/pkg/dataset"
	"github.com/charmbracelet/log"
)

func main() {
	in := flag.String("in", "data/cities.json", "Source dataset")
	out := flag.String("out", "data/cities.msgpack.gz", "Destination; the extension picks the encoding")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	flag.Parse()

	logger.Setup(*debugMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	records, err := dataset.NewLoader(*in).Load(ctx)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *in, err)
	}

	src, err := outputFormat(*out)
	if err != nil {
		log.Fatal(err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	if err := dataset.Encode(f, records, src); err != nil {
		f.Close()
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}

	info, _ := os.Stat(*out)
	var size int64
	if info != nil {
		size = info.Size()
	}
	fmt.Fprintf(os.Stderr, "Wrote %d cities to %s (%s, %d bytes) in %v\n",
		len(records), *out, describe(src), size, time.Since(start))
}

func describe(src dataset.Source) string {
	desc := src.Format.String()
	if info, ok := dataset.GetFormatInfo(src.Format); ok {
		desc = info.Description
	}
	if src.Compressed {
		desc += ", gzip"
	}
	return desc
}

func outputFormat(path string) (dataset.Source, error) {
	name := strings.ToLower(filepath.Base(path))
	src := dataset.Source{}
	if strings.HasSuffix(name, ".gz") {
		src.Compressed = true
		name = strings.TrimSuffix(name, ".gz")
	}
	src.Format = dataset.FormatFor(filepath.Ext(name))
	if src.Format == dataset.FormatUnknown {
		return src, fmt.Errorf("cannot tell the output encoding from %q; use .json or .msgpack", path)
	}
	return src, nil
}
