package types

type ProviderChangeRequest struct {
	Principal string `json:"principal"`
	Target    string `json:"target"`
}

type PauseRequest struct {
	Principal string `json:"principal"`
	Paused    bool   `json:"paused"`
}

type CooldownRequest struct {
	Principal       string `json:"principal"`
	CooldownSeconds int64  `json:"cooldown_s"`
}

type OKResponse struct {
	OK         bool   `json:"ok"`
	ServerTime string `json:"server_time"`
}
