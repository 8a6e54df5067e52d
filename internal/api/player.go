package api

import (
	"github.com/RenatoCabral2022/hypnotone/internal/playback"
	"github.com/RenatoCabral2022/hypnotone/internal/session"
)

// Player resolves session ids against the catalog and drives the
// sequencer. It backs both the HTTP API and data channel commands.
type Player struct {
	Catalog   *session.Catalog
	Sequencer *playback.Sequencer
}

// Play starts the session with the given id and returns its run id.
// Unknown ids return an error wrapping session.ErrUnknownSession.
func (p *Player) Play(sessionID string) (string, error) {
	sess, err := p.Catalog.Get(sessionID)
	if err != nil {
		return "", err
	}
	return p.Sequencer.PlaySession(sess), nil
}

// Stop stops whatever is playing.
func (p *Player) Stop() {
	p.Sequencer.StopAudio()
}
