// Package importer bulk-loads designs for one seller from gzipped JSON-lines
// files.
//
// Each line is one design:
//
//	{"name":"Ocean Hoodie","type":"Casual","discount":{"kind":"percentage","value":"10"},
//	 "variants":[{"size":"M","price":"2500","stock":30}]}
//
// Files are decoded concurrently. Writes go through a single goroutine so a
// design repeated across files is created once and then updated.
package importer

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
	"github.com/xenking/apparel-catalog/internal/domain/reconcile"
	"github.com/xenking/apparel-catalog/internal/domain/storefront"
)

const (
	// FileSuffix selects input files inside a directory.
	FileSuffix = ".jsonl.gz"

	DefaultBloomCapacity = 100_000
	DefaultBloomFPR      = 0.001

	maxLine       = 1 << 20
	progressEvery = 1000
)

// Lookup finds a seller's existing designs.
type Lookup interface {
	DesignNames(ctx context.Context, ownerID string) ([]string, error)
	FindDesignByName(ctx context.Context, ownerID, name string) (*catalog.Design, error)
}

// Writer creates and updates designs.
type Writer interface {
	Create(ctx context.Context, req storefront.CreateRequest) (*storefront.DesignView, error)
	Update(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// Config for an import run.
type Config struct {
	Owner         string
	BloomCapacity uint
	BloomFPR      float64
}

// Stats summarises an import run.
type Stats struct {
	Files   int
	Records int
	Created int
	Updated int
	// Skipped counts malformed lines and records rejected by validation.
	Skipped int
	// Failed counts records that were only partially written.
	Failed int
	// Lookups counts store lookups made after a positive bloom test.
	Lookups int
}

// Importer loads designs for a single owner.
type Importer struct {
	lookup Lookup
	writer Writer
	cfg    Config
}

// New creates an Importer.
func New(lookup Lookup, writer Writer, cfg Config) *Importer {
	if cfg.BloomCapacity == 0 {
		cfg.BloomCapacity = DefaultBloomCapacity
	}
	if cfg.BloomFPR <= 0 || cfg.BloomFPR >= 1 {
		cfg.BloomFPR = DefaultBloomFPR
	}
	return &Importer{lookup: lookup, writer: writer, cfg: cfg}
}

type line struct {
	file string
	no   int
	rec  Record
	err  error
}

// Run imports every file in paths.
func (im *Importer) Run(ctx context.Context, paths []string) (Stats, error) {
	lg := zctx.From(ctx)
	stats := Stats{Files: len(paths)}
	if strings.TrimSpace(im.cfg.Owner) == "" {
		return stats, errors.New("owner is required")
	}

	known, err := im.preload(ctx)
	if err != nil {
		return stats, err
	}

	lines := make(chan line, 256)
	g, gCtx := errgroup.WithContext(ctx)

	readers, rCtx := errgroup.WithContext(gCtx)
	for _, path := range paths {
		readers.Go(func() error {
			return streamFile(rCtx, path, lines)
		})
	}
	g.Go(func() error {
		defer close(lines)
		return readers.Wait()
	})

	g.Go(func() error {
		for l := range lines {
			stats.Records++
			if l.err != nil {
				stats.Skipped++
				lg.Warn("Skipping malformed line",
					zap.String("file", l.file),
					zap.Int("line", l.no),
					zap.Error(l.err),
				)
				continue
			}
			if err := im.apply(gCtx, known, &stats, l); err != nil {
				return err
			}
			if stats.Records%progressEvery == 0 {
				lg.Info("Import progress", zap.Int("records", stats.Records))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	lg.Info("Import complete",
		zap.Int("files", stats.Files),
		zap.Int("records", stats.Records),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (im *Importer) preload(ctx context.Context) (*bloom.BloomFilter, error) {
	names, err := im.lookup.DesignNames(ctx, im.cfg.Owner)
	if err != nil {
		return nil, errors.Wrap(err, "load design names")
	}
	capacity := max(im.cfg.BloomCapacity, uint(len(names)))
	known := bloom.NewWithEstimates(capacity, im.cfg.BloomFPR)
	for _, name := range names {
		known.AddString(name)
	}
	zctx.From(ctx).Info("Preloaded design names", zap.Int("count", len(names)))
	return known, nil
}

func (im *Importer) apply(ctx context.Context, known *bloom.BloomFilter, stats *Stats, l line) error {
	rec := l.rec
	name := strings.TrimSpace(rec.Name)

	var existing *catalog.Design
	if known.TestString(name) {
		stats.Lookups++
		d, err := im.lookup.FindDesignByName(ctx, im.cfg.Owner, name)
		switch {
		case err == nil:
			existing = d
		case errors.Is(err, catalog.ErrNotFound):
		default:
			return errors.Wrapf(err, "%s:%d: find design", l.file, l.no)
		}
	}

	var err error
	if existing != nil {
		_, err = im.writer.Update(ctx, rec.updateRequest(existing.ID, im.cfg.Owner))
	} else {
		_, err = im.writer.Create(ctx, rec.createRequest(im.cfg.Owner))
	}

	var pErr *catalog.PartialWriteError
	switch {
	case err == nil:
	case errors.As(err, &pErr):
		stats.Failed++
		zctx.From(ctx).Warn("Design partially written",
			zap.String("file", l.file),
			zap.Int("line", l.no),
			zap.String("design_id", pErr.DesignID),
			zap.Strings("failed_sizes", pErr.Failed),
			zap.Error(pErr.Err),
		)
		if existing == nil {
			known.AddString(name)
		}
		return nil
	case errors.Is(err, catalog.ErrValidation), errors.Is(err, catalog.ErrConflict), errors.Is(err, catalog.ErrNotFound):
		stats.Skipped++
		zctx.From(ctx).Warn("Skipping rejected design",
			zap.String("file", l.file),
			zap.Int("line", l.no),
			zap.String("name", name),
			zap.Error(err),
		)
		return nil
	default:
		return errors.Wrapf(err, "%s:%d: write design %q", l.file, l.no, name)
	}

	if existing != nil {
		stats.Updated++
		return nil
	}
	stats.Created++
	known.AddString(name)
	return nil
}

// Files expands input into the list of files to import. A directory yields
// its *.jsonl.gz entries in name order.
func Files(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", input)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", input)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileSuffix) {
			continue
		}
		out = append(out, filepath.Join(input, e.Name()))
	}
	if len(out) == 0 {
		return nil, errors.Errorf("no %s files in %s", FileSuffix, input)
	}
	slices.Sort(out)
	return out, nil
}

// streamFile decodes each non-blank line of a gzipped file into out.
func streamFile(ctx context.Context, path string, out chan<- line) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	name := filepath.Base(path)
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	no := 0
	for scanner.Scan() {
		no++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		l := line{file: name, no: no}
		l.rec, l.err = DecodeRecord(raw)

		select {
		case out <- l:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
