package asterisk

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"autodialer/internal/config"
	"autodialer/internal/dialer"
)

// Spooler writes .call files into the Asterisk outgoing directory. Files are
// written to a staging directory on the same filesystem and renamed into
// place so Asterisk never picks up a partial file.
type Spooler struct {
	spoolDir   string
	stagingDir string
	tmpl       Template
}

// NewSpooler prepares the spool and staging directories.
func NewSpooler(cfg config.AsteriskConfig) (*Spooler, error) {
	for _, dir := range []string{cfg.SpoolDir, cfg.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creando directorio %s: %w", dir, err)
		}
	}
	log.Printf("[Spooler] Spool=%s Staging=%s", cfg.SpoolDir, cfg.StagingDir)
	return &Spooler{
		spoolDir:   cfg.SpoolDir,
		stagingDir: cfg.StagingDir,
		tmpl:       TemplateFromConfig(cfg),
	}, nil
}

// Originate implements dialer.Originator.
func (s *Spooler) Originate(ctx context.Context, req dialer.CallRequest, slot dialer.Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fileName := FileName(req.Number, slot.Trunk)
	tmpPath := filepath.Join(s.stagingDir, fileName)
	destPath := filepath.Join(s.spoolDir, fileName)

	if err := os.WriteFile(tmpPath, []byte(s.tmpl.Render(req, slot)), 0o644); err != nil {
		return fmt.Errorf("error escribiendo archivo tmp: %w", err)
	}

	// Atomic Move
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("error moviendo archivo a spool: %w", err)
	}

	log.Printf("[Spooler] Archivo .call creado para el número %s en troncal %s: %s", req.Number, slot.Trunk, destPath)
	return nil
}
