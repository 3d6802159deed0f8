package models

type ParametersFile struct {
	Parameters map[string]string `json:"parameters" yaml:"parameters"`
}
