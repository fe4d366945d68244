// Package core is the service layer of the catalog sync engine.
//
// It is the only place callers enter: the HTTP API and the CLI go through
// [Service], and the worker pool runs jobs through [Service.Handle].
//
// # Entrypoints
//
// Every entrypoint authorizes the caller, validates its input against the
// restaurant's registry options and queues a job. None of them waits for
// the merge:
//
//   - [Service.EnqueueCatalogImport] and [Service.ImportSpreadsheet] queue
//     SaveCsvData jobs
//   - [Service.EnqueuePosSync] queues SaveCloverData jobs, with rows or with
//     a credential to fetch the inventory through
//   - [Service.OnMenuCreated] queues MenuTypeAdded propagation
//   - [Service.OnTaxRateChanged] queues TaxRateAdded or TaxRateUpdated
//     propagation
//
// Validation, authorization and pre-queue conflicts are returned to the
// caller. Anything that goes wrong inside a job rolls the job back, marks it
// failed and is reported through the notifier by [Service.OnJobFailed].
//
// # Error Handling
//
// Errors are mapped to user messages with a support code by [MapError]:
// FILE, VAL and UPL codes for specific upload problems, and one code per
// catalog error kind for the rest.
//
// # Maintenance
//
// [Service.StartScheduler] queues token refreshes ahead of credential
// expiry, requeues jobs whose lease expired and purges the upload audit log.
package core
