package scheduler

import (
	"context"
	"time"

	"ResQLink/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron 包装 robfig/cron，任务 panic 会被恢复并写入日志
type Cron struct {
	c   *cron.Cron
	loc *time.Location
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	lg := cronLogger{}
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(lg), cron.WithChain(cron.Recover(lg)))
	return &Cron{c: c, loc: loc}
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { ctx := cr.c.Stop(); <-ctx.Done() }

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(context.Background()) })
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }

// cronLogger 把 cron 内部日志转到 zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, zap.Any("kv", keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, zap.Error(err), zap.Any("kv", keysAndValues))
}
