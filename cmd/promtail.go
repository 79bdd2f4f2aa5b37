package main

import (
	"github.com/ic2hrmk/promtail"
	"github.com/sirupsen/logrus"
)

func (a *App) initLoki() error {
	if a.Config.LokiUrl == "" {
		return nil
	}

	identifiers := map[string]string{
		"instanceId": a.Name,
	}

	promTail, err := promtail.NewJSONv1Client(a.Config.LokiUrl, identifiers)
	if err != nil {
		return err
	}

	a.PromTail = promTail

	return nil
}

// lokiHook forwards log entries to Loki alongside the default output.
type lokiHook struct {
	client promtail.Client
}

func (h *lokiHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *lokiHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}

	level := promtail.Info
	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		level = promtail.Error
	case logrus.WarnLevel:
		level = promtail.Warn
	case logrus.DebugLevel, logrus.TraceLevel:
		level = promtail.Debug
	}

	h.client.Logf(level, "%s", line)

	return nil
}
