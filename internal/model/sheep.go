package model

import "time"

// Lifecycle は家畜記録のライフサイクル状態を表す。
// archived になった記録も血統参照・履歴からは引き続き解決できる。
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleArchived Lifecycle = "archived"
)

// Sex は家畜の性別を表す。
type Sex string

const (
	SexFemale Sex = "hembra"
	SexMale   Sex = "macho"
)

// WeightEntry は体重の計測値を表す。
type WeightEntry struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Reproductive は繁殖状態を表す。
type Reproductive struct {
	Pregnant          bool       `json:"pregnant"`
	LastBirth         *time.Time `json:"last_birth"`
	LastInsemination  *time.Time `json:"last_insemination"`
	ExpectedBirthDate *time.Time `json:"expected_birth_date"`
}

// Sheep は家畜（羊）の記録を表す。
// Tagは農場内で一意で、MotherTag/FatherTagから参照される。
type Sheep struct {
	ID             string        `json:"id"`
	FarmID         string        `json:"farm_id"`
	Tag            string        `json:"tag"`
	BirthDate      *time.Time    `json:"birth_date"`
	Sex            Sex           `json:"sex"`
	Breed          string        `json:"breed"`
	MotherTag      string        `json:"mother_tag"`
	FatherTag      string        `json:"father_tag"`
	Lifecycle      Lifecycle     `json:"lifecycle"`
	Weights        []WeightEntry `json:"weights"` // 日付昇順
	MilkProduction string        `json:"milk_production"`
	Diseases       string        `json:"diseases"`
	Reproductive   Reproductive  `json:"reproductive"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// LatestWeight は最新の体重記録を返す。記録がない場合はfalseを返す。
func (s *Sheep) LatestWeight() (WeightEntry, bool) {
	if len(s.Weights) == 0 {
		return WeightEntry{}, false
	}
	return s.Weights[len(s.Weights)-1], true
}

// SheepHistory は家畜ごとの履歴エントリを表す。
type SheepHistory struct {
	ID        string    `json:"id"`
	FarmID    string    `json:"farm_id"`
	SheepID   string    `json:"sheep_id"`
	Tag       string    `json:"tag"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}
