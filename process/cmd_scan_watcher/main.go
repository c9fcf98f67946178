// Command scan_watcher watches a drop directory for scanned credit-note
// documents. The seção scans the printed NC to a shared folder with the NC
// number in the filename (e.g. 2025NC000123.png); the watcher OCRs each new
// file, links it to the matching nota and stores it as an anexo.
package main

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"salc/models"
	"salc/pkg/ocr"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var numeroNCPrefixRE = regexp.MustCompile(`^(\d{4}NC\d{6})`)

var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type watcher struct {
	db        *gorm.DB
	anexoBase string
}

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.Kitchen})))

	dir := flag.String("dir", "scans", "drop directory to watch")
	workers := flag.Int("workers", 2, "OCR worker count")
	once := flag.Bool("once", false, "process existing files and exit (no watch)")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		slog.Error("DB_DSN not set in environment")
		os.Exit(1)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		slog.Error("failed to open db", "err", err)
		os.Exit(1)
	}
	anexoBase := os.Getenv("ANEXO_BASE")
	if anexoBase == "" {
		anexoBase = "anexos"
	}
	if err := os.MkdirAll(anexoBase, 0755); err != nil {
		slog.Error("failed to create anexo base dir", "dir", anexoBase, "err", err)
		os.Exit(1)
	}
	w := &watcher{db: db, anexoBase: anexoBase}

	// process whatever is already sitting in the directory first
	initial := listScanFiles(*dir)
	slog.Info("processing backlog", "dir", *dir, "files", len(initial))
	runWorkerPool(w, *dir, initial, *workers, nil)
	if *once {
		return
	}

	if err := watchDirectory(w, *dir, *workers); err != nil {
		slog.Error("watch failed", "err", err)
		os.Exit(1)
	}
}

func listScanFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	return out
}

func isSupportedExt(name string) bool {
	_, ok := extMime[strings.ToLower(filepath.Ext(name))]
	return ok
}

// watchDirectory blocks forever, debouncing Create events so half-written
// scans are not picked up mid-copy.
func watchDirectory(w *watcher, dir string, workers int) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return err
	}
	slog.Info("watching drop directory", "dir", dir)

	fileCh := make(chan string, 256)
	go func() {
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if !isSupportedExt(name) {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-fw.Errors:
				if !ok {
					close(fileCh)
					return
				}
				slog.Warn("watch error", "err", err)
			}
		}
	}()

	runWorkerPool(w, dir, nil, workers, fileCh)
	return nil
}

func runWorkerPool(w *watcher, dir string, initial []string, workers int, extra <-chan string) {
	fileCh := make(chan string, 1024)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				w.processScan(dir, name)
			}
		}()
	}
	for _, name := range initial {
		fileCh <- name
	}
	if extra != nil {
		for name := range extra {
			fileCh <- name
		}
	}
	close(fileCh)
	wg.Wait()
}

// processScan is idempotent: a scan already recorded for its nota under the
// same original filename is skipped, so re-running over a backlog is safe.
func (w *watcher) processScan(dir, name string) {
	m := numeroNCPrefixRE.FindStringSubmatch(name)
	if m == nil {
		slog.Warn("scan filename has no NC number prefix, skipping", "file", name)
		return
	}
	numero := m[1]

	var nota models.NotaCredito
	if err := w.db.Where("numeronc = ?", numero).First(&nota).Error; err != nil {
		slog.Warn("no nota for scan yet, leaving in drop dir", "numeronc", numero, "file", name)
		return
	}
	var existing models.Anexo
	if err := w.db.Where("nota_id = ? AND nome_arquivo = ?", nota.ID, name).First(&existing).Error; err == nil {
		slog.Debug("scan already recorded", "numeronc", numero, "anexo", existing.ID)
		return
	}

	srcPath := filepath.Join(dir, name)
	stored := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	dstPath := filepath.Join(w.anexoBase, stored)
	size, err := copyFile(srcPath, dstPath)
	if err != nil {
		slog.Error("failed to store scan", "file", name, "err", err)
		return
	}

	nid := nota.ID
	anexo := models.Anexo{
		NotaID:         &nid,
		NomeArquivo:    name,
		NomeArmazenado: stored,
		ContentType:    extMime[strings.ToLower(filepath.Ext(name))],
		TamanhoBytes:   size,
	}
	valor, conf, raw, err := ocr.ExtractValorFromImage(dstPath)
	if err != nil {
		anexo.Failed = true
		anexo.FailedReason = err.Error()
	} else {
		anexo.ValorOCR.Valid = true
		anexo.ValorOCR.Decimal = valor
		anexo.ConfiancaOCR = conf
		if !valor.Equal(nota.ValorTotal) {
			anexo.Divergente = true
			slog.Warn("valor OCR diverge da nota", "numeronc", numero, "valortotal", nota.ValorTotal, "valor_ocr", valor, "raw", raw)
		}
	}
	if err := w.db.Create(&anexo).Error; err != nil {
		slog.Error("failed to record anexo", "file", name, "err", err)
		return
	}
	slog.Info("scan linked", "numeronc", numero, "anexo", anexo.ID, "divergente", anexo.Divergente)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	return io.Copy(out, in)
}
