package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer("ieltsprep")
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer("ieltsprep")
	}
	return globalTracer
}

// TraceFunction starts a new span named after the given service and function.
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceGatewayFunction starts a span for model gateway operations.
func TraceGatewayFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "gateway", functionName, attributes...)
}

// TracePromptFunction starts a span for prompt catalog operations.
func TracePromptFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "prompt", functionName, attributes...)
}

// TraceAssemblerFunction starts a span for content assembler operations.
func TraceAssemblerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "assembler", functionName, attributes...)
}

// TraceUsageFunction starts a span for quota tracking operations.
func TraceUsageFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "usage", functionName, attributes...)
}

// TraceHandlerFunction starts a span for HTTP handler operations.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a span for database operations.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// TraceStorageFunction starts a span for blob storage operations.
func TraceStorageFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "storage", functionName, attributes...)
}

// FinishSpan ends a span and records any error pointed to by errPtr.
// Use with a named error return: `defer observability.FinishSpan(span, &err)`
func FinishSpan(span trace.Span, errPtr *error) {
	if span == nil {
		return
	}
	if errPtr != nil && *errPtr != nil {
		span.RecordError(*errPtr, trace.WithStackTrace(true))
		span.SetStatus(codes.Error, (*errPtr).Error())
	}
	span.End()
}

// AttributeModule records the exam module (reading, listening, writing, speaking).
func AttributeModule(module string) attribute.KeyValue {
	return attribute.String("test.module", module)
}

// AttributeQuestionType records the IELTS question type.
func AttributeQuestionType(qType string) attribute.KeyValue {
	return attribute.String("test.question_type", qType)
}

// AttributeDifficulty records the requested difficulty band.
func AttributeDifficulty(difficulty string) attribute.KeyValue {
	return attribute.String("test.difficulty", difficulty)
}

// AttributeModel records the model identifier used for a gateway call.
func AttributeModel(model string) attribute.KeyValue {
	return attribute.String("ai.model", model)
}

// AttributeUserID records the acting user.
func AttributeUserID(id int) attribute.KeyValue {
	return attribute.Int("user.id", id)
}

// AttributeQuestionCount records the requested number of questions.
func AttributeQuestionCount(count int) attribute.KeyValue {
	return attribute.Int("test.question_count", count)
}
