package contract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/evm-event-indexer/internal/models"
	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// ExtractEventSignatures parses a contract interface description and returns
// one signature descriptor per tracked event name. Every requested name must
// be present in the interface; otherwise the extraction fails fast, naming
// the full requested list and the missing names, so a run never starts with
// a partially-resolved event set.
func ExtractEventSignatures(abiJSON string, eventNames []string) ([]models.EventSignature, error) {
	if strings.TrimSpace(abiJSON) == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Contract interface is empty")
	}
	if len(eventNames) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "No events to track")
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Failed to parse contract interface", err.Error())
	}

	signatures := make([]models.EventSignature, 0, len(eventNames))
	var missing []string

	for _, name := range eventNames {
		event, ok := findEvent(parsedABI, name)
		if !ok {
			missing = append(missing, name)
			continue
		}

		indexed := 0
		for _, input := range event.Inputs {
			if input.Indexed {
				indexed++
			}
		}

		signatures = append(signatures, models.EventSignature{
			Name:      event.Name,
			Signature: event.Sig,
			Topic0:    event.ID.Hex(),
			Indexed:   indexed,
		})
	}

	if len(missing) > 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation,
			fmt.Sprintf("Requested events [%s] could not all be matched", strings.Join(eventNames, ", ")),
			fmt.Sprintf("missing from interface: %s", strings.Join(missing, ", ")))
	}

	return signatures, nil
}

// findEvent looks up an ABI event by name, case-insensitively.
func findEvent(parsedABI abi.ABI, name string) (abi.Event, bool) {
	if event, ok := parsedABI.Events[name]; ok {
		return event, true
	}
	for _, event := range parsedABI.Events {
		if strings.EqualFold(event.Name, name) {
			return event, true
		}
	}
	return abi.Event{}, false
}

// NormalizeAddress lowercases and validates a contract address.
func NormalizeAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if !common.IsHexAddress(trimmed) {
		return "", utils.NewAppError(utils.ErrCodeValidation,
			"Invalid contract address", trimmed)
	}
	return strings.ToLower(common.HexToAddress(trimmed).Hex()), nil
}
