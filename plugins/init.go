// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/flat/pkg/plugin"
	"firestige.xyz/flat/plugins/reporter/clickhouse"
	"firestige.xyz/flat/plugins/reporter/console"
	"firestige.xyz/flat/plugins/reporter/kafka"
	"firestige.xyz/flat/plugins/reporter/nats"
)

func init() {
	plugin.RegisterReporter("console", console.NewConsoleReporter)
	plugin.RegisterReporter("kafka", kafka.NewKafkaReporter)
	plugin.RegisterReporter("nats", nats.NewNATSReporter)
	plugin.RegisterReporter("clickhouse", clickhouse.NewClickHouseReporter)
}
