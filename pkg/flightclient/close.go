package flightclient

// Close transitions the client to its terminal state. The underlying
// connection is closed only when the client is Connected; a connection held
// by an operation still in progress is not closed here. After Close,
// StartConnect returns ErrAlreadyConnected and the other Start* calls
// return ErrInvalidState.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var conn interface{ Close() error }
	switch st := c.state.(type) {
	case stateConnected:
		conn = st.conn
	}
	c.state = stateClosed{}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
