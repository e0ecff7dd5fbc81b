package hast

import (
	"encoding/json"
	"fmt"
)

// setupMessage is the pre-session discriminated union: a JSON object with
// type ∈ {name, token, scenario, start}. It shares no fields with
// wsmsg.Message's wire grammar — unrecognized fields inside a recognized
// message are ignored, but an unrecognized type is a hard parse error.
type setupMessage struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Token    string `json:"token,omitempty"`
	Scenario string `json:"scenario,omitempty"`
}

const (
	setupName     = "name"
	setupToken    = "token"
	setupScenario = "scenario"
	setupStart    = "start"
)

func decodeSetupMessage(data []byte) (setupMessage, error) {
	var sm setupMessage
	if err := json.Unmarshal(data, &sm); err != nil {
		return setupMessage{}, fmt.Errorf("parse setup message: %w", err)
	}
	switch sm.Type {
	case setupName, setupToken, setupScenario, setupStart:
		return sm, nil
	default:
		return setupMessage{}, fmt.Errorf("unrecognized setup message type %q", sm.Type)
	}
}

// runSetup processes setup messages until "start", returning the cfg
// they produced. It is only entered when the server wasn't constructed
// with a fixed scenario. Any parse failure, or an unrecognized type, is a
// hard error — setup has no partial-recovery path.
func (c *conn) runSetup(cfg connConfig) (connConfig, error) {
	for {
		data, ok := c.readFrame()
		if !ok {
			return cfg, fmt.Errorf("connection closed during setup")
		}

		sm, err := decodeSetupMessage(data)
		if err != nil {
			return cfg, err
		}

		switch sm.Type {
		case setupName:
			cfg.name = sm.Name
		case setupToken:
			cfg.token = sm.Token
		case setupScenario:
			cfg.scenario = sm.Scenario
		case setupStart:
			return cfg, nil
		}
	}
}
