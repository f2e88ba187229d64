// Package journal provides the file-based deletion journal: JSON Lines
// with daily rotation, size caps, retention cleanup, and an in-memory cache
// of recent entries.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
	"github.com/Commandability/commandability-web-sub001/internal/port/outbound"
)

const dateLayout = "2006-01-02"

// Config holds configuration for the file journal.
type Config struct {
	// Dir is the directory journal files are written to.
	Dir string
	// RetentionDays is how long journal files are kept (default 90).
	RetentionDays int
	// MaxFileSizeMB is the size at which a day's file rotates (default 10).
	MaxFileSizeMB int
	// CacheSize is the number of recent entries kept in memory (default 200).
	CacheSize int
}

// journalFile is a parsed journal filename.
type journalFile struct {
	name   string
	date   string
	suffix int
}

// filePattern matches deletions-YYYY-MM-DD.jsonl and deletions-YYYY-MM-DD-N.jsonl.
var filePattern = regexp.MustCompile(`^deletions-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.jsonl$`)

func parseFilename(name string) (journalFile, bool) {
	m := filePattern.FindStringSubmatch(name)
	if m == nil {
		return journalFile{}, false
	}
	f := journalFile{name: name, date: m[1]}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return journalFile{}, false
		}
		f.suffix = n
	}
	return f, true
}

func buildFilename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("deletions-%s.jsonl", date)
	}
	return fmt.Sprintf("deletions-%s-%d.jsonl", date, suffix)
}

// sortFiles orders files chronologically: by date, then suffix.
func sortFiles(files []journalFile) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].suffix < files[j].suffix
	})
}

// FileJournal implements outbound.DeletionJournal on local files.
type FileJournal struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
	cache         *entryCache

	mu     sync.Mutex
	file   *os.File
	date   string
	size   int64
	suffix int
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures a FileJournal.
type Option func(*FileJournal)

// WithClock overrides the time source used for retention.
func WithClock(now func() time.Time) Option {
	return func(j *FileJournal) { j.now = now }
}

// Open creates the journal directory if needed, opens today's file, drops
// expired files, loads the newest file into the cache, and starts the
// hourly retention sweep. Close stops it.
func Open(cfg Config, logger *slog.Logger, opts ...Option) (*FileJournal, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal directory is required")
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 10
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 200
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	j := &FileJournal{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		now:           time.Now,
		logger:        logger,
		cache:         newEntryCache(cfg.CacheSize),
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}

	today := j.now().UTC().Format(dateLayout)
	if err := j.openCurrent(today); err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	j.cleanup()
	j.populateCache()

	j.wg.Add(1)
	go j.cleanupLoop()

	return j, nil
}

// Record appends entry as one JSON line, rotating by entry date and by
// file size.
func (j *FileJournal) Record(_ context.Context, entry deletion.JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("journal closed")
	}

	if date := entry.Time.UTC().Format(dateLayout); date != j.date {
		if err := j.rotateLocked(date, 0); err != nil {
			return fmt.Errorf("date rotation: %w", err)
		}
	}
	if j.size >= j.maxFileSize {
		if err := j.rotateLocked(j.date, j.suffix+1); err != nil {
			return fmt.Errorf("size rotation: %w", err)
		}
	}

	n, err := j.file.Write(data)
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	j.cache.add(entry)
	return nil
}

// Recent returns up to n entries, newest first.
func (j *FileJournal) Recent(n int) []deletion.JournalEntry {
	return j.cache.recent(n)
}

// Sync flushes the current file to disk.
func (j *FileJournal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	return j.file.Sync()
}

// Close stops the retention sweep and closes the current file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.stop)
	f := j.file
	j.file = nil
	j.mu.Unlock()

	j.wg.Wait()
	if f == nil {
		return nil
	}
	_ = f.Sync()
	return f.Close()
}

// openCurrent opens the newest file for date, continuing an existing one.
func (j *FileJournal) openCurrent(date string) error {
	suffix := j.highestSuffix(date)
	f, size, err := j.openFile(date, suffix)
	if err != nil {
		return err
	}
	j.file, j.date, j.size, j.suffix = f, date, size, suffix
	return nil
}

// rotateLocked switches to the file for date and suffix. Must be called
// with j.mu held.
func (j *FileJournal) rotateLocked(date string, suffix int) error {
	if j.file != nil {
		_ = j.file.Sync()
		_ = j.file.Close()
		j.file = nil
	}
	f, size, err := j.openFile(date, suffix)
	if err != nil {
		return err
	}
	j.file, j.date, j.size, j.suffix = f, date, size, suffix
	return nil
}

func (j *FileJournal) openFile(date string, suffix int) (*os.File, int64, error) {
	name := buildFilename(date, suffix)
	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", name, err)
	}
	return f, info.Size(), nil
}

// files lists the journal files in the directory, chronologically.
func (j *FileJournal) files(skipEmpty bool) []journalFile {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil
	}
	var files []journalFile
	for _, e := range entries {
		f, ok := parseFilename(e.Name())
		if !ok {
			continue
		}
		if skipEmpty {
			info, err := e.Info()
			if err != nil || info.Size() == 0 {
				continue
			}
		}
		files = append(files, f)
	}
	sortFiles(files)
	return files
}

func (j *FileJournal) highestSuffix(date string) int {
	highest := 0
	for _, f := range j.files(false) {
		if f.date == date && f.suffix > highest {
			highest = f.suffix
		}
	}
	return highest
}

// cleanup deletes files older than the retention period. The current
// file is never removed.
func (j *FileJournal) cleanup() {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)

	j.mu.Lock()
	current := buildFilename(j.date, j.suffix)
	j.mu.Unlock()

	deleted := 0
	for _, f := range j.files(false) {
		if f.name == current {
			continue
		}
		day, err := time.Parse(dateLayout, f.date)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, f.name)); err != nil {
			j.logger.Error("journal cleanup: failed to delete file", "file", f.name, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		j.logger.Info("journal cleanup completed", "deleted", deleted)
	}
}

func (j *FileJournal) cleanupLoop() {
	defer j.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

// populateCache loads the tail of the newest non-empty file.
func (j *FileJournal) populateCache() {
	files := j.files(true)
	if len(files) == 0 {
		return
	}
	newest := files[len(files)-1].name

	f, err := os.Open(filepath.Join(j.dir, newest))
	if err != nil {
		j.logger.Error("journal cache: failed to open file", "file", newest, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	var entries []deletion.JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry deletion.JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			j.logger.Warn("journal cache: skipping malformed line", "file", newest, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		j.logger.Error("journal cache: error reading file", "file", newest, "error", err)
	}

	start := 0
	if len(entries) > j.cache.size {
		start = len(entries) - j.cache.size
	}
	for _, e := range entries[start:] {
		j.cache.add(e)
	}
}

var _ outbound.DeletionJournal = (*FileJournal)(nil)

// entryCache is a ring buffer of recent entries.
type entryCache struct {
	mu      sync.RWMutex
	entries []deletion.JournalEntry
	size    int
	head    int
	count   int
}

func newEntryCache(size int) *entryCache {
	return &entryCache{entries: make([]deletion.JournalEntry, size), size: size}
}

func (c *entryCache) add(e deletion.JournalEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.head] = e
	c.head = (c.head + 1) % c.size
	if c.count < c.size {
		c.count++
	}
}

// recent returns the last n entries, newest first.
func (c *entryCache) recent(n int) []deletion.JournalEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || c.count == 0 {
		return nil
	}
	if n > c.count {
		n = c.count
	}
	out := make([]deletion.JournalEntry, n)
	for i := range n {
		out[i] = c.entries[(c.head-1-i+c.size)%c.size]
	}
	return out
}

func (c *entryCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}
