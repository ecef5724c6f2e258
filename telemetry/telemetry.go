// Package telemetry exports traces, metrics and logs to an OTLP gRPC
// collector. Without an endpoint it installs nothing and the global
// OpenTelemetry providers stay no-ops.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	slogmulti "github.com/samber/slog-multi"
)

// Providers holds the SDK providers installed by Setup.
type Providers struct {
	serviceName string
	tracer      *sdktrace.TracerProvider
	meter       *sdkmetric.MeterProvider
	logger      *sdklog.LoggerProvider
}

// Setup installs global tracer, meter and logger providers exporting to
// endpoint. An empty endpoint returns disabled Providers.
func Setup(ctx context.Context, serviceName, endpoint, environment string) (*Providers, error) {
	p := &Providers{serviceName: serviceName}
	if endpoint == "" {
		return p, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	res, err := newResource(serviceName, environment)
	if err != nil {
		return nil, err
	}

	if p.tracer, err = newTracerProvider(ctx, conn, res); err != nil {
		return nil, err
	}
	if p.meter, err = newMeterProvider(ctx, conn, res); err != nil {
		return nil, errors.Join(err, p.tracer.Shutdown(ctx))
	}
	if p.logger, err = newLoggerProvider(ctx, conn, res); err != nil {
		return nil, errors.Join(err, p.tracer.Shutdown(ctx), p.meter.Shutdown(ctx))
	}

	otel.SetTracerProvider(p.tracer)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetMeterProvider(p.meter)
	global.SetLoggerProvider(p.logger)
	return p, nil
}

// Enabled reports whether Setup installed exporting providers.
func (p *Providers) Enabled() bool {
	return p.tracer != nil
}

// Logger returns base, additionally bridged into the OpenTelemetry log
// pipeline when export is enabled.
func (p *Providers) Logger(base *slog.Logger) *slog.Logger {
	if p.logger == nil {
		return base
	}
	return BridgeLogger(base, p.serviceName, p.logger)
}

// Shutdown flushes and stops every installed provider.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.logger != nil {
		errs = append(errs, p.logger.Shutdown(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// BridgeLogger returns a logger that writes every record to base and to
// provider, so records carry trace correlation in the collector while still
// reaching the local log.
func BridgeLogger(base *slog.Logger, serviceName string, provider log.LoggerProvider) *slog.Logger {
	bridge := otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider))
	return slog.New(slogmulti.Fanout(base.Handler(), bridge))
}

func newResource(serviceName, environment string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
