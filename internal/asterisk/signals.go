package asterisk

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"autodialer/internal/callevent"
)

// Sink receives canonicalized call-end events.
type Sink interface {
	Submit(ctx context.Context, ev callevent.Event) error
}

// SignalDir exposes the files of a directory as an indexed, ordered
// collection of completion signals.
type SignalDir struct {
	dir  string
	sink Sink
}

// ConsumeResult reports what a Consume call did.
type ConsumeResult struct {
	Deleted []string `json:"deletedFiles"`
	Skipped []int    `json:"skipped,omitempty"`
}

func NewSignalDir(dir string, sink Sink) *SignalDir {
	return &SignalDir{dir: dir, sink: sink}
}

// List returns the regular files of the directory in lexical order.
// Subdirectories, such as the staging area, are not signals.
func (d *SignalDir) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("error listando %s: %w", d.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Consume reads, submits and deletes the files at the given indices of a
// single listing. Indices are processed in descending order; duplicates are
// processed once and out-of-range indices are logged and skipped.
func (d *SignalDir) Consume(ctx context.Context, indices []int) (ConsumeResult, error) {
	var res ConsumeResult

	files, err := d.List()
	if err != nil {
		return res, err
	}

	order := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(order)))

	seen := make(map[int]bool, len(order))
	for _, idx := range order {
		if seen[idx] {
			continue
		}
		seen[idx] = true

		if idx < 0 || idx >= len(files) {
			log.Printf("[Signals] Índice inválido: %d. No se encontró archivo para eliminar.", idx)
			res.Skipped = append(res.Skipped, idx)
			continue
		}

		name := files[idx]
		if err := consumeFile(ctx, filepath.Join(d.dir, name), d.sink); err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			log.Printf("[Signals] Error consumiendo %s: %v", name, err)
			res.Skipped = append(res.Skipped, idx)
			continue
		}
		res.Deleted = append(res.Deleted, name)
	}
	return res, nil
}

// consumeFile parses one signal file, hands it to sink and then removes it.
func consumeFile(ctx context.Context, path string, sink Sink) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := sink.Submit(ctx, callevent.Parse(string(data))); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("evento enviado pero no se pudo eliminar: %w", err)
	}
	return nil
}
