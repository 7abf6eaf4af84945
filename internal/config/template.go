package config

// Template is the commented config.yaml written by `agentline config init`.
// Its values match Default.
const Template = `# agentline project configuration.
# AGENTLINE_<SECTION>_<FIELD> environment variables override these values,
# e.g. AGENTLINE_LOG_LEVEL=debug.

thresholds:
  planning_score: 95
  build_score: 90

gates:
  pass_score: 95
  concerns_score: 90

breaker:
  failure_threshold: 3
  reset_timeout: 60s

log:
  level: info
  format: console

deviation:
  large_impact_stages: 4

# database:
#   url: postgres://localhost:5432/agentline

# metrics:
#   textfile: /var/lib/node_exporter/textfile/agentline.prom

# checks:
#   - name: unit
#     command: go test ./...
#     parser: go-test
#     timeout: 5m
#     checkpoints: [post-dev, pre-deploy]
`
