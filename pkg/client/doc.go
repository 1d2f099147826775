// Package client is the status-reporter SDK a spawned task process
// imports to report its own progress back over the wire protocol the
// runner's status server understands: newline-delimited, self-describing
// JSON frames on a single outbound connection.
//
// # Basic Usage
//
//	r, err := client.New(os.Getenv("TASKRUNNER_STATUS_ADDR"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	r.Started(taskID, outputDir)
//	// ... do the work ...
//	r.Finished(taskID, "passed")
//
// Every call writes and flushes a single frame immediately; there is no
// batching or retry. A connection error surfaces to the caller so it can
// decide whether to keep working without a reporter or fail fast.
package client
