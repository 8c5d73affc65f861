package pota

// Spot is one current activation as reported by /spot/activator.
type Spot struct {
	SpotID       int64   `json:"spotId"`
	Activator    string  `json:"activator"`
	Frequency    string  `json:"frequency"`
	Mode         string  `json:"mode"`
	Reference    string  `json:"reference"`
	ParkName     string  `json:"parkName"`
	SpotTime     string  `json:"spotTime"`
	Spotter      string  `json:"spotter"`
	Comments     string  `json:"comments"`
	Source       string  `json:"source"`
	Invalid      *bool   `json:"invalid"`
	Name         string  `json:"name"`
	LocationDesc string  `json:"locationDesc"`
	Grid4        string  `json:"grid4"`
	Grid6        string  `json:"grid6"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Count        int     `json:"count"`
	Expire       int     `json:"expire"`
}

// SpotComment is one spot in the history of a single activation.
type SpotComment struct {
	SpotID    int64  `json:"spotId"`
	SpotTime  string `json:"spotTime"`
	Spotter   string `json:"spotter"`
	Mode      string `json:"mode"`
	Frequency string `json:"frequency"`
	Band      string `json:"band"`
	Source    string `json:"source"`
	Comments  string `json:"comments"`
}

// StatCounts is the activations/parks/qsos triple used throughout the stats API.
type StatCounts struct {
	Activations int `json:"activations"`
	Parks       int `json:"parks"`
	QSOs        int `json:"qsos"`
}

// HunterCounts is the hunter half of the stats API.
type HunterCounts struct {
	Parks int `json:"parks"`
	QSOs  int `json:"qsos"`
}

// ActivatorStats is the /stats/user/{call} payload.
type ActivatorStats struct {
	Callsign     string       `json:"callsign"`
	Name         string       `json:"name"`
	QTH          string       `json:"qth"`
	Gravatar     string       `json:"gravatar"`
	Activator    StatCounts   `json:"activator"`
	Attempts     StatCounts   `json:"attempts"`
	Hunter       HunterCounts `json:"hunter"`
	Awards       int          `json:"awards"`
	Endorsements int          `json:"endorsements"`
}

// Park is the /park/{ref} payload, limited to the fields hunterlog keeps.
type Park struct {
	ParkID              int64   `json:"parkId"`
	Reference           string  `json:"reference"`
	Name                string  `json:"name"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	Grid4               string  `json:"grid4"`
	Grid6               string  `json:"grid6"`
	ParkTypeID          int     `json:"parktypeId"`
	ParkTypeDesc        string  `json:"parktypeDesc"`
	Active              int     `json:"active"`
	LocationDesc        string  `json:"locationDesc"`
	LocationName        string  `json:"locationName"`
	EntityID            int     `json:"entityId"`
	EntityName          string  `json:"entityName"`
	Website             string  `json:"website"`
	FirstActivator      string  `json:"firstActivator"`
	FirstActivationDate string  `json:"firstActivationDate"`
}

// Program is the top level of the /programs/locations/ tree.
type Program struct {
	ProgramID     int      `json:"programId"`
	ProgramName   string   `json:"programName"`
	ProgramPrefix string   `json:"programPrefix"`
	Entities      []Entity `json:"entities"`
}

// Entity is a DXCC entity inside a program.
type Entity struct {
	EntityID   int        `json:"entityId"`
	EntityName string     `json:"entityName"`
	Locations  []Location `json:"locations"`
}

// Location is a state/province level area ("US-CA").
type Location struct {
	LocationID int     `json:"locationId"`
	Descriptor string  `json:"descriptor"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Parks      int     `json:"parks"`
}

// SpotSubmission is the body POSTed to /spot/ to add or re-spot an activation.
type SpotSubmission struct {
	Activator string `json:"activator"`
	Spotter   string `json:"spotter"`
	Frequency string `json:"frequency"`
	Reference string `json:"reference"`
	Mode      string `json:"mode"`
	Source    string `json:"source"`
	Comments  string `json:"comments"`
}
