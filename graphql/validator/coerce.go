package validator

import (
	"github.com/hashicorp/go-multierror"

	"github.com/solvent-graphql/engine/graphql/ast"
	"github.com/solvent-graphql/engine/graphql/schema"
)

// maxVariableCoercionErrors bounds how many variable coercion failures CoerceVariableValues
// reports for a single request. A client that sends many bad variables at once gets a useful
// error list instead of either one error per retry or an unbounded response body.
const maxVariableCoercionErrors = 50

// CoerceVariableValues coerces a request's variable values against an operation's variable
// definitions. Unlike CoerceArgumentValues, it keeps going after a variable fails to coerce, so a
// client that got several variables wrong sees all of them at once rather than one per round
// trip.
func CoerceVariableValues(s *schema.Schema, operation *ast.OperationDefinition, variableValues map[string]interface{}) (map[string]interface{}, []*Error) {
	coercedValues := map[string]interface{}{}
	var errs *multierror.Error

	for _, def := range operation.VariableDefinitions {
		if errs != nil && len(errs.Errors) >= maxVariableCoercionErrors {
			break
		}

		variableName := def.Variable.Name.Name
		variableType := schemaType(def.Type, s)
		if variableType == nil || !variableType.IsInputType() {
			errs = multierror.Append(errs, newError(def.Type, "Invalid variable type."))
			continue
		}
		value, hasValue := variableValues[variableName]

		if !hasValue && def.DefaultValue != nil {
			coerced, err := schema.CoerceLiteral(def.DefaultValue, variableType, variableValues)
			if err != nil {
				errs = multierror.Append(errs, newError(def.DefaultValue, "Invalid default value for $%v: %v", variableName, err.Error()))
				continue
			}
			coercedValues[variableName] = coerced
		} else if schema.IsNonNullType(variableType) && !hasValue {
			errs = multierror.Append(errs, newError(def.Variable, "The %v variable is required.", variableName))
		} else if hasValue {
			coerced, err := schema.CoerceVariableValue(value, variableType)
			if err != nil {
				errs = multierror.Append(errs, newError(def.Variable, "Invalid $%v value: %v", variableName, err.Error()))
				continue
			}
			coercedValues[variableName] = coerced
		}
	}

	if errs.ErrorOrNil() == nil {
		return coercedValues, nil
	}
	ret := make([]*Error, len(errs.Errors))
	for i, err := range errs.Errors {
		ret[i] = err.(*Error)
	}
	return nil, ret
}

func CoerceArgumentValues(node ast.Node, argumentDefinitions map[string]*schema.InputValueDefinition, arguments []*ast.Argument, variableValues map[string]interface{}) (map[string]interface{}, *Error) {
	var coercedValues map[string]interface{}

	argumentValues := map[string]ast.Value{}
	for _, arg := range arguments {
		argumentValues[arg.Name.Name] = arg.Value
	}

	for argumentName, argumentDefinition := range argumentDefinitions {
		argumentType := argumentDefinition.Type
		defaultValue := argumentDefinition.DefaultValue

		argumentValue, hasValue := argumentValues[argumentName]

		if argumentValue, ok := argumentValue.(*ast.Variable); ok {
			_, hasValue = variableValues[argumentValue.Name.Name]
		}

		if !hasValue && defaultValue != nil {
			if defaultValue == schema.Null {
				defaultValue = nil
			}
			if coercedValues == nil {
				coercedValues = map[string]interface{}{}
			}
			coercedValues[argumentName] = defaultValue
		} else if schema.IsNonNullType(argumentType) && !hasValue {
			return nil, newError(node, "The %v argument is required.", argumentName)
		} else if hasValue {
			if coercedValues == nil {
				coercedValues = map[string]interface{}{}
			}
			if argVariable, ok := argumentValue.(*ast.Variable); ok {
				coercedValues[argumentName] = variableValues[argVariable.Name.Name]
			} else if coerced, err := schema.CoerceLiteral(argumentValue, argumentType, variableValues); err != nil {
				return nil, newError(argumentValue, "Invalid argument value: %v", err.Error())
			} else {
				coercedValues[argumentName] = coerced
			}
		}
	}

	return coercedValues, nil
}
