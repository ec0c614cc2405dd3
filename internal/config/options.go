package config

import "time"

// WithBrokerURL overrides the broker connection URL.
func WithBrokerURL(url string) Option {
	return func(c *Config) { c.Broker.URL = url }
}

// WithQueueTopology overrides the exchange/queue/routing-key-pattern/DLQ names.
func WithQueueTopology(exchange, queue, routingPattern, dlq string) Option {
	return func(c *Config) {
		c.Broker.ExchangeName = exchange
		c.Broker.QueueName = queue
		c.Broker.RoutingKeyPattern = routingPattern
		c.Broker.DeadLetterQueue = dlq
	}
}

// WithPrefetchCount overrides the broker channel's prefetch limit.
func WithPrefetchCount(n int) Option {
	return func(c *Config) { c.Broker.PrefetchCount = n }
}

// WithRetryPolicy overrides the retry ladder.
func WithRetryPolicy(maxRetries int, delays []int) Option {
	return func(c *Config) {
		c.Broker.MaxRetries = maxRetries
		c.Broker.RetryDelays = delays
	}
}

// WithObjectStoreCredentials overrides the object-store connection details.
func WithObjectStoreCredentials(endpoint, accessKey, secretKey, bucket, region string, useSSL bool) Option {
	return func(c *Config) {
		c.ObjectStore.Endpoint = endpoint
		c.ObjectStore.AccessKey = accessKey
		c.ObjectStore.SecretKey = secretKey
		c.ObjectStore.Bucket = bucket
		c.ObjectStore.Region = region
		c.ObjectStore.UseSSL = useSSL
	}
}

// WithDedupStoreKind selects the embedded or distributed dedup store.
func WithDedupStoreKind(kind DedupStoreKind) Option {
	return func(c *Config) { c.Dedup.Kind = kind }
}

// WithDedupEmbedded configures the embedded SQLite dedup store.
func WithDedupEmbedded(dbPath string, retentionHours int) Option {
	return func(c *Config) {
		c.Dedup.Kind = DedupEmbedded
		c.Dedup.DBPath = dbPath
		c.Dedup.RetentionHours = retentionHours
	}
}

// WithDedupDistributed configures the distributed Redis dedup store.
func WithDedupDistributed(redisURL string, retentionHours int) Option {
	return func(c *Config) {
		c.Dedup.Kind = DedupDistributed
		c.Dedup.RedisURL = redisURL
		c.Dedup.RetentionHours = retentionHours
	}
}

// WithDataQualityThreshold overrides the quarantine threshold.
func WithDataQualityThreshold(threshold float64) Option {
	return func(c *Config) { c.Processing.DataQualityThreshold = threshold }
}

// WithProcessingTimeout overrides the per-message processing deadline.
func WithProcessingTimeout(d time.Duration) Option {
	return func(c *Config) { c.Processing.ProcessingTimeoutSeconds = int(d.Seconds()) }
}

// WithMaxFileSizeMB overrides the maximum accepted blob size.
func WithMaxFileSizeMB(mb int) Option {
	return func(c *Config) { c.Processing.MaxFileSizeMB = mb }
}

// WithTrainingClinicalInsights toggles whether clinical_insights is included
// in emitted training-line metadata (the open question in §9).
func WithTrainingClinicalInsights(include bool) Option {
	return func(c *Config) { c.Training.IncludeClinicalInsights = include }
}

// WithTelemetry overrides the OTEL service name and OTLP endpoint.
func WithTelemetry(serviceName, otlpEndpoint string) Option {
	return func(c *Config) {
		c.Telemetry.ServiceName = serviceName
		c.Telemetry.OTLPEndpoint = otlpEndpoint
	}
}

// WithLogLevel overrides the logging verbosity.
func WithLogLevel(level string) Option {
	return func(c *Config) { c.Logging.Level = level }
}
