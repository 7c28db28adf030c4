package hub

// Sweep runs one liveness pass. A connection that has not answered the
// previous ping is removed and terminated; every other connection has its
// flag cleared and is pinged. It returns the number of reaped connections.
func (h *Hub) Sweep() int {
	reaped := 0
	h.conns.ForEach(nil, func(c *Conn) {
		if !c.alive.Swap(false) {
			c.log.Info().Str("robot_id", c.RobotID()).Msg("no pong since last sweep, terminating")
			h.drop(c)
			h.stats.reaped.Add(1)
			reaped++
			return
		}
		c.requestPing()
	})
	if reaped > 0 {
		h.log.Debug().Int("reaped", reaped).Int("open", h.conns.Count()).Msg("liveness sweep")
	}
	return reaped
}
