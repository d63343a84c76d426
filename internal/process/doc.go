// Package process runs and supervises the executables of the DNP3 master.
//
// Two shapes are supported:
//
//   - Manager keeps a long-running daemon (dreams-master) alive, restarting
//     it with exponential backoff and logging its output line by line.
//   - Run executes a short-lived command (dreams-msg-sender) to completion
//     and returns its stdout, stderr and exit code.
//
// Both start the child in its own process group so a kill reaches any
// grandchildren too.
//
// Example:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "dreams-master",
//	    Binary:           "/dreams-master/bin/dreams-master",
//	    RestartOnFailure: true,
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
