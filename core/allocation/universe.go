package allocation

import "github.com/kilianp07/taskalloc/core/model"

// Universe indexes the agents of one snapshot: attack agents first, then
// defense agents, each in input order.
type Universe struct {
	agents  []model.AgentAttributes
	index   map[string]int
	nAttack int
}

// NewUniverse indexes the snapshot. The snapshot is assumed validated.
func NewUniverse(snap model.Snapshot) *Universe {
	u := &Universe{
		agents:  make([]model.AgentAttributes, 0, snap.Len()),
		index:   make(map[string]int, snap.Len()),
		nAttack: len(snap.Attack),
	}
	for _, a := range snap.Attack {
		u.index[a.ID] = len(u.agents)
		u.agents = append(u.agents, a)
	}
	for _, d := range snap.Defense {
		u.index[d.ID] = len(u.agents)
		u.agents = append(u.agents, d)
	}
	return u
}

// Len returns |U|.
func (u *Universe) Len() int { return len(u.agents) }

// Attack returns the attack agents in input order.
func (u *Universe) Attack() []model.AgentAttributes { return u.agents[:u.nAttack] }

// Defense returns the defense agents in input order.
func (u *Universe) Defense() []model.AgentAttributes { return u.agents[u.nAttack:] }

// Agent returns the attributes for id.
func (u *Universe) Agent(id string) (model.AgentAttributes, bool) {
	i, ok := u.index[id]
	if !ok {
		return model.AgentAttributes{}, false
	}
	return u.agents[i], true
}

// Index returns the position of id in U, or -1.
func (u *Universe) Index(id string) int {
	if i, ok := u.index[id]; ok {
		return i
	}
	return -1
}

func (u *Universe) isAttack(i int) bool { return i < u.nAttack }

func (u *Universe) distance(id string) float64 {
	return u.agents[u.index[id]].DistanceToTarget
}
