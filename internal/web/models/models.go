package models

import "encoding/json"

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AddDeviceRequest struct {
	Name      string `json:"name" binding:"required"`
	Type      string `json:"type" binding:"required"`
	IPAddress string `json:"ipAddress" binding:"required"`
	MQTTTopic string `json:"mqttTopic" binding:"required"`
}

type UpdateDeviceRequest struct {
	Name      *string `json:"name"`
	Type      *string `json:"type"`
	IPAddress *string `json:"ipAddress"`
	MQTTTopic *string `json:"mqttTopic"`
}

type ControlDeviceRequest struct {
	Action string `json:"action" binding:"required,oneof=turn_on turn_off"`
}

type AddRuleRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	DeviceID    int64           `json:"deviceId" binding:"required"`
	Condition   json.RawMessage `json:"condition" binding:"required"`
	Action      json.RawMessage `json:"action" binding:"required"`
	IsActive    *bool           `json:"isActive"`
}

type UpdateRuleRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	DeviceID    *int64           `json:"deviceId"`
	Condition   *json.RawMessage `json:"condition"`
	Action      *json.RawMessage `json:"action"`
	IsActive    *bool            `json:"isActive"`
}
