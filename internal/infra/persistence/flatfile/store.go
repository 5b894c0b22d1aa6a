// Package flatfile persists the in-memory state as pipe-delimited tables, one
// file per entity. Tables are loaded whole at construction and rewritten whole
// after every successful transaction; the in-memory state stays authoritative
// for the lifetime of the process.
package flatfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"housingcore/internal/infra/persistence/memory"
	"housingcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Logger is the minimal logging surface the store needs for load warnings.
// core.Logger satisfies it.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// Table file names under the data directory.
const (
	personsFile      = "persons.txt"
	projectsFile     = "projects.txt"
	applicationsFile = "applications.txt"
	enquiriesFile    = "enquiries.txt"
	receiptsFile     = "receipts.txt"
)

// Store wraps the in-memory store and snapshots its full state to flat files.
type Store struct {
	*memory.Store
	dir    string
	logger Logger
}

// NewStore constructs a flat-file backed persistent store rooted at dir.
func NewStore(dir string, engine *domain.RulesEngine, logger Logger) (*Store, error) {
	if dir == "" {
		dir = "data"
	}
	if logger == nil {
		logger = nopLogger{}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), dir: dir, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the configured data directory.
func (s *Store) Dir() string { return s.dir }

// loadTable reads one table file, skipping the header row and logging a
// warning for every malformed row instead of failing the load.
func loadTable[T any](s *Store, name string, decode func(string) (T, error), sink func(T)) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		record, err := decode(line)
		if err != nil {
			s.logger.Warn("skipping malformed row", "table", name, "line", i+1, "error", err)
			continue
		}
		sink(record)
	}
	return nil
}

func (s *Store) load() error {
	snapshot := memory.Snapshot{
		Persons:      map[string]domain.Person{},
		Projects:     map[string]domain.Project{},
		Applications: map[string]domain.Application{},
		Enquiries:    map[string]domain.Enquiry{},
		Receipts:     map[string]domain.Receipt{},
	}
	if err := loadTable(s, personsFile, decodePerson, func(p domain.Person) {
		snapshot.Persons[p.ID] = p
	}); err != nil {
		return err
	}
	if err := loadTable(s, projectsFile, decodeProject, func(p domain.Project) {
		snapshot.Projects[p.ID] = p
	}); err != nil {
		return err
	}
	if err := loadTable(s, applicationsFile, decodeApplication, func(a domain.Application) {
		snapshot.Applications[a.ID] = a
	}); err != nil {
		return err
	}
	if err := loadTable(s, enquiriesFile, decodeEnquiry, func(e domain.Enquiry) {
		snapshot.Enquiries[e.ID] = e
	}); err != nil {
		return err
	}
	if err := loadTable(s, receiptsFile, decodeReceipt, func(r domain.Receipt) {
		snapshot.Receipts[r.ID] = r
	}); err != nil {
		return err
	}
	s.ImportState(snapshot)
	return nil
}

// writeTable rewrites one table atomically via temp file and rename.
func (s *Store) writeTable(name, header string, rows []string) error {
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(row)
		b.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return err
	}
	_, err = tmp.WriteString(b.String())
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func sortedRows[T any](records map[string]T, encode func(T) string) []string {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, encode(records[id]))
	}
	return rows
}

func (s *Store) persist() error {
	snapshot := s.ExportState()
	if err := s.writeTable(personsFile, personColumns, sortedRows(snapshot.Persons, encodePerson)); err != nil {
		return fmt.Errorf("persist persons: %w", err)
	}
	if err := s.writeTable(projectsFile, projectColumns, sortedRows(snapshot.Projects, encodeProject)); err != nil {
		return fmt.Errorf("persist projects: %w", err)
	}
	if err := s.writeTable(applicationsFile, applicationColumns, sortedRows(snapshot.Applications, encodeApplication)); err != nil {
		return fmt.Errorf("persist applications: %w", err)
	}
	if err := s.writeTable(enquiriesFile, enquiryColumns, sortedRows(snapshot.Enquiries, encodeEnquiry)); err != nil {
		return fmt.Errorf("persist enquiries: %w", err)
	}
	if err := s.writeTable(receiptsFile, receiptColumns, sortedRows(snapshot.Receipts, encodeReceipt)); err != nil {
		return fmt.Errorf("persist receipts: %w", err)
	}
	return nil
}

// RunInTransaction applies fn within a transaction, then rewrites the flat
// tables if the commit succeeded.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}
