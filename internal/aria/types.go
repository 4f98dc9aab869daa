package aria

// Wire types for the Aria Operations suite-api. Only the fields the
// exporter reads are declared; everything else in the upstream payloads is
// ignored by encoding/json.

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
	// Validity is the token expiry as epoch milliseconds.
	Validity int64 `json:"validity"`
}

type pageInfo struct {
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
}

type resourceKey struct {
	Name            string `json:"name"`
	AdapterKindKey  string `json:"adapterKindKey"`
	ResourceKindKey string `json:"resourceKindKey"`
}

type apiResource struct {
	Identifier     string      `json:"identifier"`
	ResourceKey    resourceKey `json:"resourceKey"`
	ResourceHealth string      `json:"resourceHealth"`
	ParentPath     string      `json:"parentPath"`
}

type resourcesResponse struct {
	ResourceList []apiResource `json:"resourceList"`
	PageInfo     pageInfo      `json:"pageInfo"`
}

type apiAlert struct {
	AlertID             string `json:"alertId"`
	ResourceID          string `json:"resourceId"`
	AlertLevel          string `json:"alertLevel"`
	Status              string `json:"status"`
	AlertDefinitionName string `json:"alertDefinitionName"`
}

type alertsResponse struct {
	Alerts   []apiAlert `json:"alerts"`
	PageInfo pageInfo   `json:"pageInfo"`
}

type statKey struct {
	Key  string `json:"key"`
	Unit string `json:"unit"`
}

type statEntry struct {
	StatKey    statKey   `json:"statKey"`
	Timestamps []int64   `json:"timestamps"`
	Data       []float64 `json:"data"`
}

type statsResponse struct {
	Values []statEntry `json:"values"`
}

type supermetricsResponse struct {
	SuperMetrics []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"super-metrics"`
	PageInfo pageInfo `json:"pageInfo"`
}
