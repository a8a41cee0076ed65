package gateway

import (
	apperrors "ResQLink/pkg/errors"
)

// Reason 失败原因，Key 用于 i18n，Text 为英文原文
type Reason struct {
	Key  string
	Text string
}

var (
	ReasonBluetoothUnsupported = Reason{"bluetooth.unsupported", "Bluetooth is not supported on this device/browser"}
	ReasonBluetoothAPI         = Reason{"bluetooth.api_unavailable", "Bluetooth API not available"}
	ReasonBluetoothFailed      = Reason{"bluetooth.enable_failed", "Failed to enable Bluetooth"}

	ReasonLocationUnsupported = Reason{"location.unsupported", "Geolocation is not supported on this device/browser"}
	ReasonLocationDenied      = Reason{"location.permission_denied", "Location permission denied"}
	ReasonLocationUnavailable = Reason{"location.unavailable", "Location information unavailable"}
	ReasonLocationTimeout     = Reason{"location.timeout", "Location request timed out"}
	ReasonLocationFailed      = Reason{"location.failed", "Failed to get location"}
	ReasonLocationWatch       = Reason{"location.watch_failed", "Failed to track live location"}

	ReasonBusy = Reason{"gateway.busy", "A permission request is already in progress"}
)

func (r Reason) err(code int, cause error) *apperrors.Error {
	if cause == nil {
		return apperrors.WithCode(code, r.Text).WithContext("reason", r.Key)
	}
	return apperrors.WrapCode(cause, code, r.Text).WithContext("reason", r.Key)
}

// ReasonKey 取出错误上附带的 i18n key
func ReasonKey(err error) string {
	var e *apperrors.Error
	for err != nil {
		ae, ok := err.(*apperrors.Error)
		if !ok {
			return ""
		}
		e = ae
		for _, kv := range e.Context {
			if kv.Key == "reason" {
				return kv.Value
			}
		}
		err = e.Err
	}
	return ""
}

// locationReason 按平台错误码选择定位失败原因
func locationReason(err error) (Reason, int) {
	switch apperrors.GetCode(err) {
	case apperrors.CodePermissionDenied:
		return ReasonLocationDenied, apperrors.CodePermissionDenied
	case apperrors.CodeUnavailable:
		return ReasonLocationUnavailable, apperrors.CodeUnavailable
	case apperrors.CodeTimeout:
		return ReasonLocationTimeout, apperrors.CodeTimeout
	case apperrors.CodeUnsupportedCapability:
		return ReasonLocationUnsupported, apperrors.CodeUnsupportedCapability
	default:
		return ReasonLocationFailed, apperrors.CodeUnknown
	}
}
