package common

// AgentTokenHeaderName is the gRPC metadata key carrying the bearer token the
// master presents to a shard agent.
const AgentTokenHeaderName = "authorization"

// ServicePrefix prefixes every systemd unit managed by the shard agent.
const ServicePrefix = "yn_"
