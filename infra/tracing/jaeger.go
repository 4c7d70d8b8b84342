package tracing

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegermetrics "github.com/uber/jaeger-lib/metrics"
	jaegerprom "github.com/uber/jaeger-lib/metrics/prometheus"
)

// InitGlobalTracer installs a jaeger tracer configured by the JAEGER_*
// environment as the global tracer. Tracer metrics go to registerer when it
// is not nil. The returned closer flushes pending spans.
func InitGlobalTracer(serviceName string, registerer prometheus.Registerer) (io.Closer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = serviceName
	}

	var metricsFactory jaegermetrics.Factory = jaegermetrics.NullFactory
	if registerer != nil {
		metricsFactory = jaegerprom.New(jaegerprom.WithRegisterer(registerer))
	}

	tracer, closer, err := cfg.NewTracer(jaegercfg.Logger(logrusLogger{}), jaegercfg.Metrics(metricsFactory))
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	logrus.WithField("service", cfg.ServiceName).Info("jaeger tracer installed")
	return closer, nil
}

type logrusLogger struct{}

func (logrusLogger) Error(msg string) {
	logrus.WithField("component", "jaeger").Error(msg)
}

func (logrusLogger) Infof(msg string, args ...interface{}) {
	logrus.WithField("component", "jaeger").Infof(msg, args...)
}

func (logrusLogger) Debugf(msg string, args ...interface{}) {
	logrus.WithField("component", "jaeger").Debugf(msg, args...)
}
