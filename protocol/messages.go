// Package protocol 客户端与服务端之间的消息定义。
// 入站消息是封闭集合：每种 MsgType 对应一个具体载荷类型。
package protocol

// MsgType 消息类型标签
type MsgType string

// 入站
const (
	MsgLogin           MsgType = "login"
	MsgRegister        MsgType = "register"
	MsgResumeSession   MsgType = "resumeSession"
	MsgPlayerInput     MsgType = "playerInput"
	MsgEnemyDestroyed  MsgType = "enemyDestroyed"
	MsgCollectResource MsgType = "collectResource"
	MsgSellResource    MsgType = "sellResource"
	MsgRefineResource  MsgType = "refineResource"
	MsgFireBeam        MsgType = "fireBeam"
	MsgFireGuided      MsgType = "fireGuided"
	MsgDamageEntity    MsgType = "damageEntity"
	MsgPlayerDamaged   MsgType = "playerDamaged"
	MsgPlayerHeal      MsgType = "playerHeal"
	MsgRespawn         MsgType = "respawn"
	MsgDisconnect      MsgType = "disconnect"
)

// 出站
const (
	MsgLoginSuccess     MsgType = "loginSuccess"
	MsgLoginResponse    MsgType = "loginResponse"
	MsgRegisterResponse MsgType = "registerResponse"
	MsgGameState        MsgType = "gameState"
	MsgInventory        MsgType = "inventory"
	MsgError            MsgType = "error"
)

// Inbound 所有入站载荷实现该接口
type Inbound interface {
	Type() MsgType
}

type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Register struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ResumeSession struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// PlayerInput 客户端上报的本地预测结果与交战意图
type PlayerInput struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
	Rotation float64 `json:"rotation"`
	TargetID string  `json:"targetId,omitempty"`
	Engaged  bool    `json:"engaged,omitempty"`
	Seq      int64   `json:"seq,omitempty"`
}

type EnemyDestroyed struct {
	EnemyType string `json:"type"`
}

type CollectResource struct {
	ID string `json:"id"`
}

type SellResource struct {
	Resource string `json:"type"`
	Amount   int    `json:"amount"`
}

type RefineResource struct {
	TargetType string `json:"targetType"`
}

type FireBeam struct {
	AmmoType string `json:"ammoType"`
}

type FireGuided struct {
	RocketType string `json:"rocketType"`
}

type DamageEntity struct {
	ID     string  `json:"id"`
	Damage float64 `json:"damage"`
}

type PlayerDamaged struct {
	Damage float64 `json:"damage"`
}

type PlayerHeal struct {
	Amount float64 `json:"amount"`
}

const (
	RespawnBase = "base"
	RespawnSpot = "spot"
)

type Respawn struct {
	Mode string `json:"mode"`
}

type Disconnect struct{}

func (m PlayerInput) validate() error   { return finite(m.X, m.Y, m.VX, m.VY, m.Rotation) }
func (m DamageEntity) validate() error  { return finite(m.Damage) }
func (m PlayerDamaged) validate() error { return finite(m.Damage) }
func (m PlayerHeal) validate() error    { return finite(m.Amount) }

func (Login) Type() MsgType           { return MsgLogin }
func (Register) Type() MsgType        { return MsgRegister }
func (ResumeSession) Type() MsgType   { return MsgResumeSession }
func (PlayerInput) Type() MsgType     { return MsgPlayerInput }
func (EnemyDestroyed) Type() MsgType  { return MsgEnemyDestroyed }
func (CollectResource) Type() MsgType { return MsgCollectResource }
func (SellResource) Type() MsgType    { return MsgSellResource }
func (RefineResource) Type() MsgType  { return MsgRefineResource }
func (FireBeam) Type() MsgType        { return MsgFireBeam }
func (FireGuided) Type() MsgType      { return MsgFireGuided }
func (DamageEntity) Type() MsgType    { return MsgDamageEntity }
func (PlayerDamaged) Type() MsgType   { return MsgPlayerDamaged }
func (PlayerHeal) Type() MsgType      { return MsgPlayerHeal }
func (Respawn) Type() MsgType         { return MsgRespawn }
func (Disconnect) Type() MsgType      { return MsgDisconnect }

// InboundTypes 全部入站类型，供处理表做完整性校验
func InboundTypes() []MsgType {
	return []MsgType{
		MsgLogin, MsgRegister, MsgResumeSession, MsgPlayerInput, MsgEnemyDestroyed,
		MsgCollectResource, MsgSellResource, MsgRefineResource, MsgFireBeam,
		MsgFireGuided, MsgDamageEntity, MsgPlayerDamaged, MsgPlayerHeal,
		MsgRespawn, MsgDisconnect,
	}
}

// ---- 出站载荷 ----

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Currency struct {
	Experience      int64 `json:"experience"`
	Credits         int64 `json:"credits"`
	Honor           int64 `json:"honor"`
	SpecialCurrency int64 `json:"specialCurrency"`
}

type LoginSuccess struct {
	ID           string   `json:"id"`
	SessionToken string   `json:"sessionToken"`
	Username     string   `json:"username"`
	Position     Position `json:"position"`
	Level        int      `json:"level"`
	Currency     Currency `json:"currency"`
	ShipType     string   `json:"shipType"`
}

// Response loginResponse / registerResponse 共用的结构化结果
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PlayerState struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VX        float64 `json:"vx"`
	VY        float64 `json:"vy"`
	Rotation  float64 `json:"rotation"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Shield    float64 `json:"shield"`
	MaxShield float64 `json:"maxShield"`
	ShipType  string  `json:"shipType"`
}

type HostileState struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VX        float64 `json:"vx"`
	VY        float64 `json:"vy"`
	Rotation  float64 `json:"rotation"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Shield    float64 `json:"shield"`
	MaxShield float64 `json:"maxShield"`
	Engaged   bool    `json:"engaged"`
	Attitude  string  `json:"attitude"`
}

type ResourceState struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Amount int     `json:"amount"`
}

type GameState struct {
	Players   []PlayerState   `json:"players"`
	Hostiles  []HostileState  `json:"hostiles"`
	Resources []ResourceState `json:"resources,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type Inventory struct {
	Level     int            `json:"level"`
	Currency  Currency       `json:"currency"`
	Ammo      map[string]int `json:"ammo"`
	Rockets   map[string]int `json:"rockets"`
	Resources map[string]int `json:"resources"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
