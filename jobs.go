package main

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs runs the periodic maintenance tasks.
type Jobs struct {
	c   *cron.Cron
	hub *Hub
	log *zap.Logger
}

func NewJobs(hub *Hub, log *zap.Logger) *Jobs {
	return &Jobs{
		c:   cron.New(),
		hub: hub,
		log: log.Named("jobs"),
	}
}

// Start schedules the hub health sweep and starts the scheduler.
func (j *Jobs) Start(healthSchedule string) error {
	if err := j.addScheduledJob("hub health sweep", j.healthSweep, healthSchedule); err != nil {
		return err
	}
	j.c.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (j *Jobs) Stop() {
	<-j.c.Stop().Done()
}

func (j *Jobs) addScheduledJob(name string, job func(), schedule string) error {
	_, err := j.c.AddFunc(schedule, func() {
		j.log.Debug("started scheduled job", zap.String("job", name))
		job()
	})
	if err != nil {
		j.log.Error("failed to queue scheduled job", zap.String("job", name), zap.Error(err))
		return err
	}
	j.log.Info("queued scheduled job", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

func (j *Jobs) healthSweep() {
	if closed := j.hub.CheckHealth(); closed > 0 {
		j.log.Info("closed idle connections", zap.Int("count", closed))
	}
}
