// Package config loads the harvester's configuration.
//
// Two kinds of files are read:
//
//   - the engine configuration (EngineConfig), read with viper from YAML and
//     overridden by HARVESTER_* environment variables, e.g.
//     HARVESTER_PROCESSOR_MAX_CONCURRENT=8 or HARVESTER_STORE_DSN=postgres://...
//   - task files (TaskFile), read with yaml.v3 after ${VAR_NAME} substitution,
//     each holding one task definition and the triggers scheduling it.
//
// # Engine configuration
//
//	logging:
//	  level: info
//	processor:
//	  max_concurrent: 4
//	  input_error_policy: abort   # or skip
//	  max_input_errors: 10
//	robots:
//	  enabled: true
//	store:
//	  driver: postgres
//	  dsn: ${HARVESTER_DSN}
//	metrics:
//	  addr: ":9090"
//
// Secrets such as API keys are plain entity definition properties; reference
// them from environment variables in task files:
//
//	source:
//	  type: CKAN
//	  properties:
//	    hostUrl: https://catalog.example.org
//	    apiKey: ${CKAN_API_KEY}
package config
