package models

// CustomerInfo is the customer profile returned by the directory service.
// The upstream Spring API serializes field names in Korean, hence the tags.
type CustomerInfo struct {
	CustomerID          string `json:"고객 ID"`
	Name                string `json:"이름"`
	Gender              string `json:"성별,omitempty"`
	Age                 int    `json:"나이,omitempty"`
	PhoneNumber         string `json:"전화번호"`
	IsForeigner         string `json:"외국인 유무(Y/N),omitempty"`
	CombinationProduct  string `json:"결합상품명,omitempty"`
	RatePlan            string `json:"요금제명,omitempty"`
	IPTVProduct         string `json:"IPTV 상품 명,omitempty"`
	ContractPeriod      string `json:"약정기간,omitempty"`
	RemainingMonths     string `json:"잔여개월,omitempty"`
	OptionalContract    string `json:"선택약정(Y/N),omitempty"`
	InternetProduct     string `json:"인터넷상품명,omitempty"`
	WelfareCard         string `json:"복지카드(Y/N),omitempty"`
	Overcharge1MonthAgo string `json:"초과 요금 발생 여부(1개월 전),omitempty"`
	Overcharge2MonthAgo string `json:"초과 요금 발생 여부(2개월 전),omitempty"`
	DataCarryover       string `json:"데이터 이월 여부(Y/N),omitempty"`
	DataSharing         string `json:"쉐어링 사용 여부(Y/N),omitempty"`
	HouseholdType       string `json:"1인가구/가족 가구,omitempty"`
	RemoteWork          string `json:"재택 근무,omitempty"`

	// MonthlyFee is resolved from the rate plan when the directory provides
	// it; zero means unknown and disables price-capped retrieval.
	MonthlyFee int `json:"월정액,omitempty"`
}
