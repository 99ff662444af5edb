// Package harvester is a metadata harvesting engine.
//
// A task pairs one input broker with one or more output brokers. Running a
// task creates a process that iterates the input, hands every data reference
// to each output and reports the outcome. Triggers run tasks on demand, at a
// fixed time, periodically or on a cron schedule, and the history of
// completed runs lets incremental sources fetch only what changed since the
// last successful harvest.
//
// # Architecture
//
//   - pkg/connector: broker contracts, the connector registry and the
//     CKAN and folder sources plus the folder, S3, GCS, Kafka, MongoDB and
//     PostgreSQL sinks
//   - internal/pipeline: tasks, processes and the bounded processor
//   - internal/trigger: trigger types and the trigger manager
//   - internal/store: in-memory and PostgreSQL definition stores
//   - internal/engine: wiring of the above from an EngineConfig
//   - cmd/harvester: the command line
//
// # Quick Start
//
// A task file:
//
//	task:
//	  name: portal
//	  incremental: true
//	  source:
//	    type: CKAN
//	    properties:
//	      hostUrl: https://catalog.example.org
//	  destinations:
//	    - type: FOLDER
//	      properties:
//	        rootFolder: /var/harvest
//	triggers:
//	  - type: CRON
//	    properties:
//	      cron: "0 3 * * *"
//
// Run it once, or schedule every task of a directory:
//
//	harvester run --task portal.yaml
//	harvester serve --tasks /etc/harvester/tasks
//
// Embedding the engine:
//
//	cfg, err := config.LoadEngine("harvester.yaml")
//	eng, err := engine.New(ctx, cfg, engine.Options{Logger: logger.Get()})
//	p, err := eng.Run(ctx, def)
//	fmt.Println(p.State())
package harvester
