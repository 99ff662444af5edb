// Package connector groups the broker contracts and their implementations.
//
//   - core: InputBroker, OutputBroker and Iterator, the contracts every
//     broker implements, plus the init and iterator contexts handed to them
//   - registry: maps entity definition types to connectors. Connector
//     packages register themselves from init
//   - sdk: helpers for broker authors such as property validation, paged
//     iteration and document naming for file-like sinks
//   - sources: the CKAN and folder input brokers
//   - destinations: the folder, S3, GCS, Kafka, MongoDB and PostgreSQL
//     output brokers
//
// # Writing a broker
//
// An input broker validates its entity definition in its constructor,
// acquires resources in Initialize and returns a fresh Iterator per run:
//
//	func NewBroker(def models.EntityDefinition) (core.InputBroker, error) {
//		v := sdk.NewPropertyValidator(def)
//		root := v.Required("rootFolder")
//		if err := v.Err(); err != nil {
//			return nil, err
//		}
//		return &Broker{def: def.Clone(), root: root}, nil
//	}
//
//	func init() {
//		_ = registry.RegisterInput(core.InputConnectorFunc{Name: "MINE", New: NewBroker})
//	}
//
// Errors use the structured types of the errors package. Input errors are
// counted against the processor's input error policy, output errors fail the
// reference for that destination only.
package connector
