package model

// Requester is the contact identity used to fill forms.
type Requester struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Address  string `mapstructure:"address"`
	Phone    string `mapstructure:"phone"`
	Password string `mapstructure:"password"`
}
