/*
Package cli provides command-line helpers shared by the sentinel
subcommands: JSON output, error wrapping, and shutdown signal handling.

Output:

	if err := cli.WriteJSON(os.Stdout, report); err != nil {
		return err
	}

Errors are wrapped so the top-level line names the failing operation:

	return cli.NewCommandError("policy list", err)

Signal handling for graceful shutdown:

	sig := <-cli.WaitForShutdown()
*/
package cli
