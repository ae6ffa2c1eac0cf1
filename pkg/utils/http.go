package utils

import "io"

// DrainAndClose discards what is left of an HTTP body and closes it, so the
// connection goes back to the transport's idle pool. A nil body is a no-op.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	return rc.Close()
}
