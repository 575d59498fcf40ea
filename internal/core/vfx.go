package core

// TypeVFXCommand tags bus messages on the vfx:command topic. It is a
// pipeline-internal message, not a normalized platform event, so it is
// deliberately outside EventType.Valid's closed set.
const TypeVFXCommand EventType = "vfx:command"

// VFXCommand asks the VFX engine to fire an effect. Either Command (a
// literal trigger like "!confetti") or CommandKey (a config lookup key like
// "gifts") is set.
type VFXCommand struct {
	Command    string
	CommandKey string
	Username   string
	UserID     string
	Context    VFXContext
}

// VFXContext travels with a VFX command so downstream handlers can tell
// where it came from and whether cooldowns apply.
type VFXContext struct {
	SkipCooldown  bool
	CorrelationID string
	Source        string
}

// VFX command sources. The routing layer refuses to re-execute commands
// whose source marks them as already processed, breaking publish loops.
const (
	VFXSourceChat         = "chat"
	VFXSourceDisplayQueue = "display-queue"
	VFXSourceVFXService   = "vfx-service"
	VFXSourceEventBus     = "eventbus"
)

func (VFXCommand) payload() {}
