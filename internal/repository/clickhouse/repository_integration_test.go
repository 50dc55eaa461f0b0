package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang/mock/gomock"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"github.com/stretchr/testify/suite"
	tcClickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"go.uber.org/zap"
)

const (
	clickhouseImage = "clickhouse/clickhouse-server:25.11"
)

type RepositorySuite struct {
	suite.Suite
	ctx        context.Context
	cancel     context.CancelFunc
	container  *tcClickhouse.ClickHouseContainer
	dsn        string
	repo       *Repository
	metrics    *MockMetrics
	metricsCtl *gomock.Controller
	testCtx    context.Context
	testCancel context.CancelFunc
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("clickhouse container suite skipped in short mode")
	}
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	container, err := tcClickhouse.Run(s.ctx,
		clickhouseImage,
		tcClickhouse.WithUsername("default"),
		tcClickhouse.WithDatabase("default"),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)
	s.dsn = dsn
}

func (s *RepositorySuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *RepositorySuite) SetupTest() {
	s.testCtx, s.testCancel = context.WithTimeout(context.Background(), time.Minute)
	s.metricsCtl = gomock.NewController(s.T())
	s.metrics = NewMockMetrics(s.metricsCtl)

	s.Require().NoError(applyMigrationsUp(s.dsn))

	repo, err := NewRepository(s.dsn, s.metrics)
	s.Require().NoError(err)
	s.Require().NoError(repo.Ping(s.testCtx))
	s.repo = repo
}

func (s *RepositorySuite) TearDownTest() {
	if s.testCancel != nil {
		s.testCancel()
	}
	if s.repo != nil {
		s.Require().NoError(s.repo.Close())
	}
	s.Require().NoError(applyMigrationsDown(s.dsn))
	if s.metricsCtl != nil {
		s.metricsCtl.Finish()
	}
}

func (s *RepositorySuite) countRows(table string) uint64 {
	rows, err := s.repo.raw.Query(s.testCtx, fmt.Sprintf("SELECT count() FROM %s FINAL", table))
	s.Require().NoError(err)
	defer func() {
		s.Require().NoError(rows.Close())
	}()

	var count uint64
	s.Require().True(rows.Next())
	s.Require().NoError(rows.Scan(&count))
	return count
}

func hash(c string) string {
	return strings.Repeat(c, 64)
}

func (s *RepositorySuite) TestInsertRows() {
	now := time.Now().UTC().Truncate(time.Second)
	s.metrics.EXPECT().Observe(gomock.Any(), gomock.Nil(), gomock.Any()).Times(3)

	s.Require().NoError(s.repo.InsertBlocks(s.testCtx, []model.BlockRow{
		{Height: 0, Hash: hash("a"), PrevHash: hash("0"), Timestamp: now, Version: 1, MerkleRoot: hash("f"), Bits: 0x207fffff, TXCount: 1},
		{Height: 1, Hash: hash("b"), PrevHash: hash("a"), Timestamp: now, Version: 1, MerkleRoot: hash("e"), Bits: 0x207fffff, TXCount: 1},
	}))
	s.Require().NoError(s.repo.InsertTransactions(s.testCtx, []model.TransactionRow{
		{TxID: hash("c"), BlockHeight: 1, Timestamp: now, Kind: "transfer", Sender: "alice", InputCount: 1, OutputCount: 2},
	}))
	s.Require().NoError(s.repo.InsertTransactionOutputs(s.testCtx, []model.TransactionOutputRow{
		{BlockHeight: 1, TxID: hash("c"), Index: 0, Address: "bob", Value: 5},
		{BlockHeight: 1, TxID: hash("c"), Index: 1, Address: "alice", Value: 95},
	}))

	s.Equal(uint64(2), s.countRows("blackbook_blocks"))
	s.Equal(uint64(1), s.countRows("blackbook_transactions"))
	s.Equal(uint64(2), s.countRows("blackbook_transaction_outputs"))
}

func (s *RepositorySuite) TestReinsertedBlockCollapses() {
	now := time.Now().UTC().Truncate(time.Second)
	row := model.BlockRow{Height: 7, Hash: hash("a"), PrevHash: hash("0"), Timestamp: now, Version: 1, MerkleRoot: hash("f"), Bits: 1, TXCount: 0}
	s.metrics.EXPECT().Observe("insert_blocks", gomock.Nil(), gomock.Any()).Times(2)

	s.Require().NoError(s.repo.InsertBlocks(s.testCtx, []model.BlockRow{row}))
	s.Require().NoError(s.repo.InsertBlocks(s.testCtx, []model.BlockRow{row}))

	s.Equal(uint64(1), s.countRows("blackbook_blocks"))
}

func (s *RepositorySuite) TestArchiveWriterFlushesOnStop() {
	s.metrics.EXPECT().Observe(gomock.Any(), gomock.Nil(), gomock.Any()).AnyTimes()

	now := time.Now().UTC().Truncate(time.Second)
	block := &model.Block{Height: 0, Transactions: []*model.Transaction{{
		Kind:      model.TxGenesis,
		Sender:    model.SystemAddress,
		Outputs:   []model.Output{{Address: "alice", Value: 1}, {Address: "bob", Value: 2}},
		Timestamp: now,
	}}}
	block.Header.Timestamp = now
	block.Transactions[0].ID = block.Transactions[0].Hash()

	w := NewArchiveWriter(zap.NewNop(), s.repo)
	w.Start(s.testCtx)
	s.Require().NoError(w.Archive(s.testCtx, block))
	w.Stop()

	s.Equal(uint64(1), s.countRows("blackbook_blocks"))
	s.Equal(uint64(1), s.countRows("blackbook_transactions"))
	s.Equal(uint64(2), s.countRows("blackbook_transaction_outputs"))
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working dir: %w", err)
	}

	for {
		if _, statErr := os.Stat(filepath.Join(dir, "go.mod")); statErr == nil {
			return dir, nil
		}
		next := filepath.Dir(dir)
		if next == dir {
			return "", fmt.Errorf("go.mod not found from %s", dir)
		}
		dir = next
	}
}

func applyMigrationsUp(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func applyMigrationsDown(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	root, err := moduleRoot()
	if err != nil {
		return nil, err
	}

	sourceURL := fmt.Sprintf("file://%s", filepath.Join(root, "migrations", "clickhouse"))
	m, err := migrate.New(sourceURL, withMultiStatement(dsn))
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

func withMultiStatement(dsn string) string {
	if strings.Contains(dsn, "x-multi-statement=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "x-multi-statement=true"
}
