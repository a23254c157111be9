package fleet

import "batch-delete/pkg/model"

const listComputersQuery = `query listComputers($pageSize: Int, $next: String, $filter: ComputerFiltersInput) {
  listComputers(input: {pageSize: $pageSize, next: $next, filter: $filter}) {
    items { uuid serial hostName checkin }
    pageInfo { next }
  }
}`

const deleteComputerMutation = `mutation deleteComputer($uuid: ID!) {
  deleteComputer(uuid: $uuid) { uuid }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type computerPage struct {
	Items    []model.Computer `json:"items"`
	PageInfo struct {
		Next *string `json:"next"`
	} `json:"pageInfo"`
}

type listComputersResponse struct {
	Data struct {
		ListComputers computerPage `json:"listComputers"`
	} `json:"data"`
	Errors []graphqlError `json:"errors,omitempty"`
}
