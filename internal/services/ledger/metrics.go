package ledger

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordTransaction(string, int64)   {}
func (n *NoopMetricsCollector) RecordConflict(string)             {}
func (n *NoopMetricsCollector) RecordError(string, string)        {}
func (n *NoopMetricsCollector) RecordWebhookEvent(string, string) {}
func (n *NoopMetricsCollector) RecordVerificationAttempt(string)  {}
