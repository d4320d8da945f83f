package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/common"
	"github.com/foundryhq/jobengine/internal/interfaces"
)

// Manager implements interfaces.StorageManager, the composite handle the
// composition root wires into every subsystem that needs durable state.
type Manager struct {
	db       *SQLiteDB
	jobs     interfaces.JobRepository
	sessions interfaces.SessionStore
	settings interfaces.SettingsStore
	credits  interfaces.CreditStore
	logger   arbor.ILogger
}

// NewManager opens the database and builds every store on top of it.
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		db:       db,
		jobs:     NewJobStorage(db, logger, config.HistoryClearDays),
		sessions: NewSessionStorage(db, logger),
		settings: NewSettingsStorage(db, logger),
		credits:  NewCreditStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("storage manager initialized (jobs, sessions, settings, credits)")
	return m, nil
}

func (m *Manager) JobRepository() interfaces.JobRepository { return m.jobs }
func (m *Manager) SessionStore() interfaces.SessionStore    { return m.sessions }
func (m *Manager) SettingsStore() interfaces.SettingsStore  { return m.settings }
func (m *Manager) CreditStore() interfaces.CreditStore      { return m.credits }

func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.DB()
	}
	return nil
}

func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
